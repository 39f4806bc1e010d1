package rules

// 清单类型
const (
	KindDASH = "DASH"
	KindHLS  = "HLS"
	KindMSS  = "MSS"
)

// DefaultManifestRules 常见流媒体清单识别规则
func DefaultManifestRules() []Rule {
	get := Condition{Type: "method", Values: []string{"GET"}}
	return []Rule{
		{
			ID: "dash-mpd", Kind: KindDASH, Priority: 10,
			Match: Match{AllOf: []Condition{get, {Type: "url", Mode: "suffix", Pattern: ".mpd"}}},
		},
		{
			ID: "dash-content-type", Kind: KindDASH, Priority: 5,
			Match: Match{AllOf: []Condition{get, {Type: "header", Key: "accept", Op: "contains", Value: "application/dash+xml"}}},
		},
		{
			ID: "hls-m3u8", Kind: KindHLS, Priority: 10,
			Match: Match{AllOf: []Condition{get, {Type: "url", Mode: "suffix", Pattern: ".m3u8"}}},
		},
		{
			ID: "mss-manifest", Kind: KindMSS, Priority: 8,
			Match: Match{
				AllOf: []Condition{get},
				AnyOf: []Condition{
					{Type: "url", Mode: "regex", Pattern: `(?i)\.isml?/manifest(\?|$)`},
					{Type: "url", Mode: "suffix", Pattern: "/manifest"},
				},
			},
		},
	}
}
