package base

import "proxyrules/core/groups"

// DNS is the dns block of the YAML configs.
type DNS struct {
	Enable            *bool    `yaml:"enable,omitempty" json:"enable,omitempty"`
	IPv6              bool     `yaml:"ipv6" json:"ipv6"`
	EnhancedMode      string   `yaml:"enhanced-mode" json:"enhanced-mode"`
	DefaultNameserver []string `yaml:"default-nameserver" json:"default-nameserver"`
	Nameserver        []string `yaml:"nameserver" json:"nameserver"`
	FakeIPFilter      []string `yaml:"fake-ip-filter,omitempty" json:"fake-ip-filter,omitempty"`
}

// DNS builds the dns block. fakeIP selects fake-ip over redir-host and adds
// the fake-ip filter.
func (c *Config) DNS(ipv6, fakeIP bool) DNS {
	enable := true
	d := DNS{
		Enable:            &enable,
		IPv6:              ipv6,
		EnhancedMode:      "redir-host",
		DefaultNameserver: c.Resolvers(ipv6),
		Nameserver:        append([]string(nil), c.DoH...),
	}
	if fakeIP {
		d.EnhancedMode = "fake-ip"
		d.FakeIPFilter = append([]string(nil), c.FakeIPFilter...)
	}
	return d
}

// SniffPorts lists the ports of one sniffed protocol.
type SniffPorts struct {
	Ports               []interface{} `yaml:"ports" json:"ports"`
	OverrideDestination bool          `yaml:"override-destination,omitempty" json:"override-destination,omitempty"`
}

// Sniffer is the sniffer block.
type Sniffer struct {
	Sniff      map[string]SniffPorts `yaml:"sniff" json:"sniff"`
	SkipDomain []string              `yaml:"skip-domain" json:"skip-domain"`
}

// Sniffer returns the fixed sniffer block.
func (c *Config) Sniffer() Sniffer {
	return Sniffer{
		Sniff: map[string]SniffPorts{
			"HTTP": {Ports: []interface{}{80, "8080-8880"}, OverrideDestination: true},
			"TLS":  {Ports: []interface{}{443, 8443}},
			"QUIC": {Ports: []interface{}{443, 8443}},
		},
		SkipDomain: []string{"Mijia Cloud", "dlg.io.mi.com", "+.push.apple.com"},
	}
}

const geoRelease = "https://github.com/MetaCubeX/meta-rules-dat/releases/download/latest/"

// GeoX holds the geodata download URLs.
type GeoX struct {
	GeoIP   string `yaml:"geoip" json:"geoip"`
	GeoSite string `yaml:"geosite" json:"geosite"`
	MMDB    string `yaml:"mmdb" json:"mmdb"`
	ASN     string `yaml:"asn" json:"asn"`
}

// GeoX returns the geodata URLs.
func (c *Config) GeoX() GeoX {
	return GeoX{
		GeoIP:   geoRelease + "geoip-lite.dat",
		GeoSite: geoRelease + "geosite.dat",
		MMDB:    geoRelease + "geoip.metadb",
		ASN:     geoRelease + "GeoLite2-ASN.mmdb",
	}
}

// CountryMMDB is the country database Loon and Surge download.
const CountryMMDB = geoRelease + "country.mmdb"

// ASNMMDB is the ASN database Loon downloads.
const ASNMMDB = geoRelease + "GeoLite2-ASN.mmdb"

// Profile is the profile block of the general header.
type Profile struct {
	StoreSelected bool `yaml:"store-selected" json:"store-selected"`
}

// General is the header of a full Mihomo config.
type General struct {
	MixedPort               int     `yaml:"mixed-port" json:"mixed-port"`
	AllowLAN                bool    `yaml:"allow-lan" json:"allow-lan"`
	IPv6                    bool    `yaml:"ipv6" json:"ipv6"`
	Mode                    string  `yaml:"mode" json:"mode"`
	UnifiedDelay            bool    `yaml:"unified-delay" json:"unified-delay"`
	TCPConcurrent           bool    `yaml:"tcp-concurrent" json:"tcp-concurrent"`
	FindProcessMode         string  `yaml:"find-process-mode" json:"find-process-mode"`
	GlobalClientFingerprint string  `yaml:"global-client-fingerprint" json:"global-client-fingerprint"`
	LogLevel                string  `yaml:"log-level" json:"log-level"`
	GeodataLoader           string  `yaml:"geodata-loader" json:"geodata-loader"`
	ExternalController      string  `yaml:"external-controller" json:"external-controller"`
	ExternalUI              string  `yaml:"external-ui" json:"external-ui"`
	ExternalUIURL           string  `yaml:"external-ui-url" json:"external-ui-url"`
	DisableKeepAlive        bool    `yaml:"disable-keep-alive" json:"disable-keep-alive"`
	Profile                 Profile `yaml:"profile" json:"profile"`
}

// General returns the full-config header.
func (c *Config) General(ipv6 bool) General {
	return General{
		MixedPort:               c.MixedPort,
		AllowLAN:                true,
		IPv6:                    ipv6,
		Mode:                    "rule",
		UnifiedDelay:            true,
		TCPConcurrent:           true,
		FindProcessMode:         "strict",
		GlobalClientFingerprint: "chrome",
		LogLevel:                "info",
		GeodataLoader:           "standard",
		ExternalController:      ":9999",
		ExternalUI:              "ui",
		ExternalUIURL:           "https://github.com/MetaCubeX/metacubexd/archive/refs/heads/gh-pages.zip",
		DisableKeepAlive:        true,
		Profile:                 Profile{StoreSelected: true},
	}
}

// GeoUpdateInterval is the geodata refresh period in hours.
const GeoUpdateInterval = 24

// FinalRules are appended after every rule set: mainland IPs go direct and
// everything else goes through Proxy.
func (c *Config) FinalRules() []string {
	return []string{
		"GEOIP,CN," + groups.Direct,
		"MATCH," + groups.Proxy,
	}
}

// FinalPolicy is the group unmatched traffic uses.
func (c *Config) FinalPolicy() string {
	return groups.Proxy
}

// DirectPolicy is the group mainland traffic uses.
func (c *Config) DirectPolicy() string {
	return groups.Direct
}
