package dex

import "strings"

// displayNameOverrides covers forms whose generated name reads badly.
var displayNameOverrides = map[string]string{
	"charizard-mega-x": "Mega Charizard X",
	"charizard-mega-y": "Mega Charizard Y",
	"mewtwo-mega-x":    "Mega Mewtwo X",
	"mewtwo-mega-y":    "Mega Mewtwo Y",
	"deoxys-normal":    "Deoxys",
	"deoxys-attack":    "Attack-Deoxys",
	"deoxys-defense":   "Defense-Deoxys",
}

// Capitalize upper-cases the first letter of s and leaves the rest alone.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// TitleCase capitalizes every hyphen-separated segment and joins them with spaces.
func TitleCase(s string) string {
	if s == "" {
		return s
	}
	parts := strings.Split(s, "-")
	for i, p := range parts {
		parts[i] = Capitalize(p)
	}
	return strings.Join(parts, " ")
}

// DisplayName renders an entity name for humans: overrides first, then the
// "Mega X" rule for mega forms, then TitleCase.
func DisplayName(name string) string {
	if override, ok := displayNameOverrides[name]; ok {
		return TitleCase(override)
	}
	if strings.Contains(name, "-mega") {
		return TitleCase("Mega " + Capitalize(strings.ReplaceAll(name, "-mega", "")))
	}
	return TitleCase(name)
}
