package constants

// Tool names as used in the rule catalog mapping tables
const (
	ToolMihomo = "Mihomo"
	ToolStash  = "Stash"
	ToolLoon   = "Loon"
	ToolSurge  = "Surge"
)

// File names
const (
	SettingsFileName = "proxyrules.jsonc"
	RulesFileName    = "RemoteRules.yaml"
	LinkBaseFileName = "RemoteRulesLinkBase.yaml"
	DNSFileName      = "DNS.yaml"
	PortsFileName    = "Ports.yaml"
	FakeIPFileName   = "Fake_IP_Filter.yaml"
	TestURLFileName  = "Test_URL.yaml"
	HeadDirName      = "Head"
	HeadLoonFileName = "Head_Loon.conf"
)

// Directory names
const (
	OutputDirName  = "Config"
	RulesetDirName = "ruleset"
)

// Generation defaults
const (
	DefaultMinRegionCount = 2
	ProviderInterval      = 86400
)

// Policy sentinels understood by every consumer tool
const (
	PolicyDirect     = "DIRECT"
	PolicyReject     = "REJECT"
	PolicyRejectDrop = "REJECT-DROP"
)

// Application version
// Can be overridden at build time using -ldflags="-X proxyrules/internal/constants.AppVersion=..."
var (
	AppVersion = "v0.1.0"
)
