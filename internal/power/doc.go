// Package power reports the battery charge level to the force discharge
// logic.
//
// The preferred source is UPower on the system D-Bus: the display device
// emits PropertiesChanged whenever its Percentage changes. On systems
// without UPower a poller reading the power_supply capacity attribute is
// used instead.
//
// Basic usage:
//
//	src := power.Chain(logger,
//	    power.NewUPower(logger),
//	    power.NewCapacityPoller(fs, "BAT0"),
//	)
//	stop, err := src.Subscribe(ctx, func(percent float64) {
//	    fmt.Printf("battery at %.0f%%\n", percent)
//	})
//	defer stop()
package power
