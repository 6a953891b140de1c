package render

import (
	"fmt"

	"proxyrules/core/base"
	"proxyrules/core/groups"
	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

const (
	loonAllFilter = "ALL_Filter"
	loonSkipProxy = "192.168.0.0/16, 10.0.0.0/8, 172.16.0.0/12, 100.64.0.0/10, 162.14.0.0/16, 211.99.96.0/19, " +
		"162.159.192.0/24, 162.159.193.0/24, 162.159.195.0/24, fc00::/7, fe80::/10, localhost, *.local, *.lan, " +
		"captive.apple.com, passenger.t3go.cn, *.ccb.com, wxh.wo.cn, *.abcchina.com, *.abcchina.com.cn"
	loonBypassTun = "10.0.0.0/8, 100.64.0.0/10, 127.0.0.0/8, 169.254.0.0/16, 172.16.0.0/12, 192.0.0.0/24, " +
		"192.0.2.0/24, 192.168.0.0/16, 192.88.99.0/24, 198.51.100.0/24, 203.0.113.0/24, 224.0.0.0/4, " +
		"255.255.255.255/32, 2a0e:800:ff80:5::/64, ::/128"
)

// loonFilterName is the [Remote Filter] entry of a region code.
func loonFilterName(code string) string {
	return code + "_Filter"
}

// Loon renders a Loon .lcf config. Region groups select their nodes through
// NameRegex remote filters.
func Loon(b Bundle) ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	cfg := b.Base
	var t textConfig

	t.line("# proxyrules %s", constants.AppVersion)
	t.line("# Loon config, ipv6=%v", b.IPv6)
	t.blank()

	t.section("General")
	if b.IPv6 {
		t.line("ip-mode = dual")
		t.line("ipv6-vif = auto")
	} else {
		t.line("ip-mode = ipv4-only")
		t.line("ipv6-vif = off")
	}
	t.line("skip-proxy = " + loonSkipProxy)
	t.line("bypass-tun = " + loonBypassTun)
	t.line("sni-sniffing = true")
	t.line("dns-server = %s", join(append(cfg.Resolvers(b.IPv6), "system")))
	if len(cfg.DoH) > 0 {
		t.line("doh-server = %s", join(cfg.DoH))
	}
	t.line("allow-udp-proxy = true")
	t.line("allow-wifi-access = true")
	t.line("wifi-access-http-port = %d", cfg.HTTPPort)
	t.line("wifi-access-socket5-port = %d", cfg.SOCKS5Port)
	t.line("internet-test-url = %s", cfg.InternetTestURL)
	t.line("proxy-test-url = %s", cfg.ProxyTestURL)
	t.line("test-timeout = 3")
	t.line("real-ip = %s", join(cfg.FakeIPFilter))
	t.line("geoip-url = %s", base.CountryMMDB)
	t.line("ipasn-url = %s", base.ASNMMDB)
	t.line("disconnect-on-policy-change = true")
	t.line("interface-mode = auto")
	t.blank()

	t.section("Proxy")
	t.blank()
	t.section("Remote Proxy")
	t.blank()

	t.section("Plugin")
	t.lines(cfg.LoonPlugins())
	t.blank()

	t.section("Remote Filter")
	t.line(`%s = NameRegex, FilterKey = ".*"`, loonAllFilter)
	for _, s := range b.Summaries {
		t.line(`%s = NameRegex, FilterKey = "%s"`, loonFilterName(s.Code), s.Pattern)
	}
	t.blank()

	t.section("Proxy Group")
	written := 0
	for _, g := range withoutGlobal(b.Groups) {
		line, err := b.loonGroup(g)
		if err != nil {
			return nil, err
		}
		t.line(line)
		written++
	}
	t.blank()

	t.section("Remote Rule")
	t.lines(b.Catalog.LoonRemoteRules())
	t.blank()

	t.section("Rule")
	t.line("GEOIP, CN, %s", cfg.DirectPolicy())
	t.line("FINAL, %s", cfg.FinalPolicy())

	renderLog(debuglog.LevelVerbose, "Loon: %d groups (ipv6=%v)", written, b.IPv6)
	return t.bytes(), nil
}

func (b Bundle) loonGroup(g groups.ProxyGroup) (string, error) {
	icon := ""
	if g.Icon != "" {
		icon = ", img-url = " + g.Icon
	}

	source := join(g.Members)
	if g.IncludeAll {
		source = loonAllFilter
		if g.IsRegion() {
			s, ok := b.summary(g)
			if !ok {
				return "", fmt.Errorf("group %q has no region summary", g.Name)
			}
			source = loonFilterName(s.Code)
		}
	}

	if g.Kind == groups.KindURLTest && g.HealthCheck != nil {
		return fmt.Sprintf("%s = url-test, %s, url = %s, interval = %d, tolerance = %d%s",
			g.Name, source, g.HealthCheck.URL, g.HealthCheck.Interval, g.HealthCheck.Tolerance, icon), nil
	}
	return fmt.Sprintf("%s = select, %s%s", g.Name, source, icon), nil
}
