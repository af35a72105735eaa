package wcrelay

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"flowwallet.io/wallet-link/pkg/errors"
)

const uriPrefix = "wc:"

// PairingURI is the out-of-band handshake link a peer scans or opens to
// pair with the wallet: topic to subscribe, bridge to dial, key to seal with.
type PairingURI struct {
	Topic   string
	Version string
	Bridge  string
	Key     []byte
}

func (in PairingURI) String() string {
	return fmt.Sprintf("%s%s@%s?bridge=%s&key=%s",
		uriPrefix, in.Topic, in.Version, url.QueryEscape(in.Bridge), hex.EncodeToString(in.Key))
}

// ParsePairingURI parses a wc:<topic>@<version>?bridge=...&key=... link.
func ParsePairingURI(raw string) (*PairingURI, error) {
	unescaped, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, errors.Wrap(err, "unescape pairing uri")
	}
	if !strings.HasPrefix(unescaped, uriPrefix) {
		return nil, errors.Errorf("pairing uri missing %q prefix", uriPrefix)
	}
	rest := strings.TrimPrefix(unescaped, uriPrefix)
	head, query, found := cut(rest, "?")
	if !found {
		return nil, errors.New("pairing uri missing query")
	}
	topic, version, found := cut(head, "@")
	if !found || topic == "" {
		return nil, errors.New("pairing uri missing topic or version")
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, errors.Wrap(err, "parse pairing uri query")
	}
	bridge := values.Get("bridge")
	if bridge == "" {
		return nil, errors.New("pairing uri missing bridge")
	}
	key, err := hex.DecodeString(values.Get("key"))
	if err != nil {
		return nil, errors.Wrap(err, "decode pairing uri key hex")
	}
	if len(key) == 0 {
		return nil, errors.New("pairing uri missing key")
	}
	return &PairingURI{
		Topic:   topic,
		Version: version,
		Bridge:  bridge,
		Key:     key,
	}, nil
}

func cut(s, sep string) (before, after string, found bool) {
	idx := strings.Index(s, sep)
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+len(sep):], true
}

// GetWebSocketUrl rewrites a https bridge URL into its websocket endpoint.
func GetWebSocketUrl(url, protocol, version string) string {
	if strings.HasPrefix(url, "https") {
		url = strings.Replace(url, "https", "wss", 1)
	}
	return url + "?protocol=" + protocol + "&version=" + version + "&env=wallet"
}

func extractHostname(url string) string {
	var hostname string
	idx := strings.Index(url, "//")
	if idx > -1 {
		hostname = strings.Split(url, "/")[2]
	} else {
		hostname = strings.Split(url, "/")[0]
	}
	hostname = strings.Split(hostname, ":")[0]
	return strings.Split(hostname, "?")[0]
}

// ExtractRootDomain returns the registrable domain of a peer URL, used to
// present dApp origins consistently.
func ExtractRootDomain(url string) string {
	hostname := extractHostname(url)
	arr := strings.Split(hostname, ".")
	if len(arr) < 2 {
		return hostname
	}
	arr = arr[len(arr)-2:]
	return strings.Join(arr, ".")
}
