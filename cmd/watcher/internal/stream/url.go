package stream

import "strings"

// NormalizeURL turns whatever was configured into a websocket URL. http and https map
// to ws and wss; a bare host gets ws for local development and wss otherwise. An empty
// input yields fallback.
func NormalizeURL(raw, fallback string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return fallback
	}

	// Collapse doubled schemes such as "wss://https://host".
	for _, outer := range []string{"wss://", "ws://"} {
		if rest, ok := strings.CutPrefix(u, outer); ok {
			if inner, ok := strings.CutPrefix(rest, "https://"); ok {
				return "wss://" + inner
			}
			if inner, ok := strings.CutPrefix(rest, "http://"); ok {
				return "ws://" + inner
			}
			return u
		}
	}

	if rest, ok := strings.CutPrefix(u, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(u, "http://"); ok {
		return "ws://" + rest
	}

	if isLocal(u) {
		return "ws://" + u
	}
	return "wss://" + u
}

func isLocal(hostAndPath string) bool {
	host := hostAndPath
	if i := strings.IndexAny(host, "/?"); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host == "localhost" || host == "127.0.0.1"
}
