package chat

import "strings"

var locationKeywords = []string{
	"location",
	"address",
	"where are you",
	"your location",
	"where is this",
}

// RequiresLocation reports whether a normal reply appears to ask the user for their location.
// It is a UI hint only.
func RequiresLocation(reply string) bool {
	reply = strings.ToLower(reply)

	for _, keyword := range locationKeywords {
		if strings.Contains(reply, keyword) {
			return true
		}
	}

	return false
}
