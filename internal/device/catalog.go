package device

// Catalog returns every known driver constructor in probe order. The order
// matters: single battery variants exclude their dual counterparts only
// through the file checks, so dual drivers come first.
func Catalog() []Constructor {
	return []Constructor{
		NewLG,                 // 5
		NewSamsung,            // 6
		NewSony,               // 7
		NewHuawei,             // 8
		NewToshibaBAT0,        // 9
		NewToshibaBAT1,        // 10
		NewSystem76,           // 11
		NewThinkpadLegacyDual, // 13
		NewThinkpadLegacyBAT0, // 14
		NewThinkpadLegacyBAT1, // 15
		NewApple,              // 16
		NewAcer,               // 17
		NewMsiBAT0,            // 18
		NewThinkpadDual,       // 19
		NewThinkpadBAT0,       // 20
		NewThinkpadBAT1,       // 21
		NewDell,               // 22
		NewPanasonic,          // 23
		NewMsiBAT1,            // 26
		NewTuxedo,             // 27
		NewGigabyte,           // 28
		NewRazer,              // 30
		NewFramework,          // 31
		NewChromebook,         // 35
		NewFrameworkEndStart,  // 36
	}
}
