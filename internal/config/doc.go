// Package config provides the durable settings store shared by battctl
// components.
//
// Settings live in a YAML file and are accessed through the Store interface,
// which every component receives at construction. Each key has one writer:
//
//   - device-type: the device registry
//   - configuration-mode, multiple-configuration-supported: the active driver
//   - polkit-status: the orchestrator (and external installers)
//   - everything else: the user, through the CLI or by editing the file
//
// # File Location
//
//   - $XDG_CONFIG_HOME/battctl/settings.yaml, or
//   - $HOME/.config/battctl/settings.yaml
//
// # Change Notification
//
// Subscribe registers a callback for one key. Callbacks run after a Set that
// changed the value, and after Reload or Watch picks up an external edit of
// the file. Setting a key to its current value notifies nobody.
//
//	unsubscribe := store.Subscribe(config.KeyForceDischargeEnabled, func(string) {
//	    ...
//	})
//	defer unsubscribe()
//
// # Secrets
//
// The BIOS password used by Dell's cctk backend is never written to the
// settings file. It is kept in the desktop secret store (see KeyringSecrets).
package config
