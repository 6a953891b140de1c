package render

import (
	"fmt"

	"proxyrules/core/base"
	"proxyrules/core/groups"
	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

const (
	// surgeNodeGroup is the policy-path group that holds the user's nodes.
	surgeNodeGroup = "Proxies"
	surgeSkipProxy = "192.168.0.0/24, 10.0.0.0/8, 172.16.0.0/12, 127.0.0.1, localhost, *.local, " +
		"captive.apple.com, passenger.t3go.cn, *.ccb.com, wxh.wo.cn, *.abcchina.com, *.abcchina.com.cn"
	surgeNodeGroupIcon = "https://testingcf.jsdelivr.net/gh/Koolson/Qure@master/IconSet/Color/Proxy.png"
)

// Surge renders a Surge .conf config. Region groups pick nodes from the
// Proxies policy-path group with policy-regex-filter.
func Surge(b Bundle) ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	cfg := b.Base
	var t textConfig

	t.line("# proxyrules %s", constants.AppVersion)
	t.line("# Surge 5 config, ipv6=%v", b.IPv6)
	t.blank()

	t.section("General")
	t.line("loglevel = notify")
	t.line("show-error-page-for-reject = true")
	t.line("allow-wifi-access = true")
	t.line("wifi-access-http-port = %d", cfg.HTTPPort)
	t.line("wifi-access-socks5-port = %d", cfg.SOCKS5Port)
	t.line("all-hybrid = false")
	if b.IPv6 {
		t.line("ipv6 = true")
		t.line("ipv6-vif = auto")
	} else {
		t.line("ipv6 = false")
		t.line("ipv6-vif = disabled")
	}
	t.line("test-timeout = 3")
	t.line("internet-test-url = %s", cfg.InternetTestURL)
	t.line("proxy-test-url = %s", cfg.ProxyTestURL)
	t.line("geoip-maxmind-url = %s", base.CountryMMDB)
	t.line("dns-server = %s", join(append(cfg.Resolvers(b.IPv6), "system")))
	if len(cfg.DoH) > 0 {
		t.line("encrypted-dns-server = %s", join(cfg.DoH))
	}
	t.line("hijack-dns = 8.8.8.8:53, 8.8.4.4:53")
	t.line("read-etc-hosts = true")
	t.line("exclude-simple-hostnames = true")
	t.line("skip-proxy = " + surgeSkipProxy)
	if len(cfg.SurgeAlwaysRealIP) > 0 {
		t.line("always-real-ip = %s", join(cfg.SurgeAlwaysRealIP))
	}
	t.line("use-default-policy-if-wifi-not-primary = false")
	t.line("disable-geoip-db-auto-update = false")
	t.line("udp-policy-not-supported-behaviour = REJECT")
	t.line("http-api-web-dashboard = false")
	t.blank()

	t.section("Proxy")
	t.blank()

	t.section("Proxy Group")
	for _, g := range withoutGlobal(b.Groups) {
		line, err := b.surgeGroup(g)
		if err != nil {
			return nil, err
		}
		t.line(line)
	}
	t.blank()
	t.line("# %s", surgeNodeGroup)
	t.line("%s = select, policy-path=<Your Node List Link Here>, update-interval=0, no-alert=0, hidden=0, include-all-proxies=1, icon-url=%s",
		surgeNodeGroup, surgeNodeGroupIcon)
	t.blank()

	t.section("Rule")
	t.lines(b.Catalog.SurgeRuleSets())
	t.blank()
	t.line("# LAN")
	t.line("RULE-SET,LAN,%s", cfg.DirectPolicy())
	t.blank()
	t.line("# GeoIP CN")
	t.line("GEOIP,CN,%s", cfg.DirectPolicy())
	t.blank()
	t.line("# Final")
	t.line("FINAL,%s,dns-failed", cfg.FinalPolicy())

	renderLog(debuglog.LevelVerbose, "Surge: ipv6=%v", b.IPv6)
	return t.bytes(), nil
}

func (b Bundle) surgeGroup(g groups.ProxyGroup) (string, error) {
	icon := "icon-url=" + g.Icon
	if !g.IncludeAll {
		kind := "select"
		if g.Kind == groups.KindURLTest {
			kind = "smart"
		}
		return fmt.Sprintf("%s = %s, %s, %s", g.Name, kind, join(g.Members), icon), nil
	}

	head := fmt.Sprintf("%s = select, include-other-group=%s, update-interval=0", g.Name, surgeNodeGroup)
	if !g.IsRegion() {
		return head + ", " + icon, nil
	}

	s, ok := b.summary(g)
	if !ok {
		return "", fmt.Errorf("group %q has no region summary", g.Name)
	}
	if s.IsOther() {
		return fmt.Sprintf("%s, policy-regex-filter=^(?!.*(%s)), %s", head, foldCase(s.ExcludePattern), icon), nil
	}
	return fmt.Sprintf("%s = smart, include-other-group=%s, update-interval=0, policy-regex-filter=(%s), %s",
		g.Name, surgeNodeGroup, foldCase(s.Pattern), icon), nil
}
