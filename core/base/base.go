// Package base loads the settings every generated config shares: resolvers,
// listening ports, the fake-ip filter, connectivity test URLs and the Loon
// head file. It also carries the fixed sniffer, geodata and general blocks.
//
// Files are read from an fs.FS so the embedded defaults and a directory on
// disk load the same way:
//
//	DNS.yaml            DNS_IP, DNS_DoH
//	Ports.yaml          Mihomo.Mixed_Port, General.HTTP_Port, General.SOCKS5_Port
//	Fake_IP_Filter.yaml Fake_IP_Filter, Surge_Always_Real_IP
//	Test_URL.yaml       internet-test-url, proxy-test-url
//	Head/Head_Loon.conf optional; its [Plugin] section is copied into Loon configs
package base

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"proxyrules/assets"
	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

const loaderLogLevel = debuglog.UseGlobal

func baseLog(level debuglog.Level, format string, args ...interface{}) {
	debuglog.Log("Base", level, loaderLogLevel, format, args...)
}

// Defaults used when a file leaves a value out.
const (
	DefaultMixedPort       = 56365
	DefaultHTTPPort        = 56365
	DefaultSOCKS5Port      = 56366
	DefaultInternetTestURL = "http://connect.rom.miui.com/generate_204"
	DefaultProxyTestURL    = "http://www.gstatic.com/generate_204"
	DefaultLoonPlugin      = "https://raw.githubusercontent.com/Peng-YM/Loon-Gallery/master/loon-gallery.plugin, enable = true"
)

// Config is the loaded base settings.
type Config struct {
	DNSIPs            []string
	DoH               []string
	MixedPort         int
	HTTPPort          int
	SOCKS5Port        int
	FakeIPFilter      []string
	SurgeAlwaysRealIP []string
	InternetTestURL   string
	ProxyTestURL      string
	LoonHead          string
}

type dnsFile struct {
	IPs []string `yaml:"DNS_IP"`
	DoH []string `yaml:"DNS_DoH"`
}

type portsFile struct {
	Mihomo struct {
		MixedPort int `yaml:"Mixed_Port"`
	} `yaml:"Mihomo"`
	General struct {
		HTTPPort   int `yaml:"HTTP_Port"`
		SOCKS5Port int `yaml:"SOCKS5_Port"`
	} `yaml:"General"`
}

type fakeIPFile struct {
	Filter []string `yaml:"Fake_IP_Filter"`
	RealIP []string `yaml:"Surge_Always_Real_IP"`
}

type testURLFile struct {
	Internet string `yaml:"internet-test-url"`
	Proxy    string `yaml:"proxy-test-url"`
}

// Default loads the embedded base settings.
func Default() (*Config, error) {
	return LoadFS(assets.Base())
}

// Load reads base settings from dir, or the embedded defaults when dir is "".
func Load(dir string) (*Config, error) {
	if dir == "" {
		return Default()
	}
	return LoadFS(os.DirFS(dir))
}

// LoadFS reads base settings from the root of fsys.
func LoadFS(fsys fs.FS) (*Config, error) {
	cfg := &Config{
		MixedPort:       DefaultMixedPort,
		HTTPPort:        DefaultHTTPPort,
		SOCKS5Port:      DefaultSOCKS5Port,
		InternetTestURL: DefaultInternetTestURL,
		ProxyTestURL:    DefaultProxyTestURL,
	}

	var dns dnsFile
	if err := readYAML(fsys, constants.DNSFileName, &dns); err != nil {
		return nil, err
	}
	cfg.DNSIPs, cfg.DoH = dns.IPs, dns.DoH

	var ports portsFile
	if err := readYAML(fsys, constants.PortsFileName, &ports); err != nil {
		return nil, err
	}
	if ports.Mihomo.MixedPort > 0 {
		cfg.MixedPort = ports.Mihomo.MixedPort
	}
	if ports.General.HTTPPort > 0 {
		cfg.HTTPPort = ports.General.HTTPPort
	}
	if ports.General.SOCKS5Port > 0 {
		cfg.SOCKS5Port = ports.General.SOCKS5Port
	}

	var fakeIP fakeIPFile
	if err := readYAML(fsys, constants.FakeIPFileName, &fakeIP); err != nil {
		return nil, err
	}
	cfg.FakeIPFilter, cfg.SurgeAlwaysRealIP = fakeIP.Filter, fakeIP.RealIP

	var urls testURLFile
	if err := readYAML(fsys, constants.TestURLFileName, &urls); err != nil {
		return nil, err
	}
	if urls.Internet != "" {
		cfg.InternetTestURL = urls.Internet
	}
	if urls.Proxy != "" {
		cfg.ProxyTestURL = urls.Proxy
	}

	head, err := fs.ReadFile(fsys, path.Join(constants.HeadDirName, constants.HeadLoonFileName))
	switch {
	case err == nil:
		cfg.LoonHead = string(head)
	case errors.Is(err, fs.ErrNotExist):
		baseLog(debuglog.LevelVerbose, "no %s, Loon configs use the default plugin", constants.HeadLoonFileName)
	default:
		return nil, fmt.Errorf("failed to read %s: %w", constants.HeadLoonFileName, err)
	}

	if len(cfg.DNSIPs) == 0 && len(cfg.DoH) == 0 {
		return nil, fmt.Errorf("%s declares no resolvers", constants.DNSFileName)
	}

	baseLog(debuglog.LevelVerbose, "loaded %d resolvers, %d DoH servers, %d fake-ip entries",
		len(cfg.DNSIPs), len(cfg.DoH), len(cfg.FakeIPFilter))
	return cfg, nil
}

func readYAML(fsys fs.FS, name string, v interface{}) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// isIPv6 reports whether a resolver address is an IPv6 literal.
func isIPv6(addr string) bool {
	return strings.Contains(addr, ":")
}

// Resolvers returns the plain resolvers, without IPv6 ones when ipv6 is off.
func (c *Config) Resolvers(ipv6 bool) []string {
	out := make([]string, 0, len(c.DNSIPs))
	for _, ip := range c.DNSIPs {
		if !ipv6 && isIPv6(ip) {
			continue
		}
		out = append(out, ip)
	}
	return out
}

// LoonPlugins returns the lines of the [Plugin] section of the Loon head file,
// or the default plugin when the file has none.
func (c *Config) LoonPlugins() []string {
	var out []string
	inPlugin := false
	sc := bufio.NewScanner(strings.NewReader(c.LoonHead))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") {
			if inPlugin {
				break
			}
			inPlugin = line == "[Plugin]"
			continue
		}
		if inPlugin && line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		return []string{DefaultLoonPlugin}
	}
	return out
}
