package portal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Context paths exposed by Stalker middleware installations. Most portals
// serve the loader at /server/load.php; some only answer on /portal.php.
const (
	defaultContextPath     = "/server/load.php"
	alternativeContextPath = "/portal.php"
)

// PortalURL derives the API endpoint from the configured server address.
// Addresses ending in /c or /c/ point at the STB web root; the API lives one
// level up. A bare host gets the conventional /stalker_portal prefix.
func PortalURL(serverAddress string, alternative bool) (string, error) {
	serverAddress = strings.TrimSpace(serverAddress)
	if serverAddress == "" {
		return "", errors.New("portal: server address is empty")
	}
	parsed, err := url.Parse(serverAddress)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("portal: server address %q must be an absolute URL", serverAddress)
	}

	contextPath := defaultContextPath
	if alternative {
		contextPath = alternativeContextPath
	}

	switch {
	case strings.HasSuffix(serverAddress, "/c/"):
		return strings.TrimSuffix(serverAddress, "/c/") + contextPath, nil
	case strings.HasSuffix(serverAddress, "/c"):
		return strings.TrimSuffix(serverAddress, "/c") + contextPath, nil
	default:
		return parsed.Scheme + "://" + parsed.Host + "/stalker_portal" + contextPath, nil
	}
}
