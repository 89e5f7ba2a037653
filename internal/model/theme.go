package model

// ThemeVars holds the CSS custom properties the shell applies to the document root.
type ThemeVars struct {
	Primary       string `json:"--primary"`
	Ring          string `json:"--ring"`
	SidebarAccent string `json:"--sidebar-accent"`
}

// DefaultTheme returns the stock theme restored after logout.
func DefaultTheme() ThemeVars {
	return ThemeVars{
		Primary:       "142.1 76.2% 36.3%",
		Ring:          "142.1 76.2% 36.3%",
		SidebarAccent: "240 4.8% 95.9%",
	}
}

// Properties returns the variables as property/value pairs in application order.
func (t ThemeVars) Properties() [][2]string {
	return [][2]string{
		{"--primary", t.Primary},
		{"--ring", t.Ring},
		{"--sidebar-accent", t.SidebarAccent},
	}
}
