package dom

import "encoding/json"

// Kind is the container a banner was found in.
type Kind int

const (
	KindPlain Kind = iota
	KindFramed
	KindShadowHosted
)

var kindNames = [...]string{"plain", "framed", "shadow_hosted"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for i, n := range kindNames {
		if n == s {
			*k = Kind(i)
			return nil
		}
	}
	*k = KindPlain
	return nil
}

// Strategy is the boundary resolution strategy that produced a banner.
// Framed banners are located directly and carry StrategyNone.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyFixedAncestor
	StrategyZIndexCluster
	StrategyDeepestCommon
)

func (s Strategy) String() string {
	switch s {
	case StrategyFixedAncestor:
		return "fixed_ancestor"
	case StrategyZIndexCluster:
		return "zindex_cluster"
	case StrategyDeepestCommon:
		return "deepest_common"
	}
	return "none"
}

// Banner is a detected consent banner. Downstream code dispatches on Kind:
// Frame is set only for KindFramed, Host only for KindShadowHosted.
type Banner struct {
	Kind     Kind
	Element  Node
	Frame    Node
	Host     Node
	Strategy Strategy
	// Keywords are the consent keywords that matched inside the banner.
	Keywords []string
}

// Plain returns a banner found in the top-level document.
func Plain(el Node, s Strategy, keywords []string) Banner {
	return Banner{Kind: KindPlain, Element: el, Strategy: s, Keywords: keywords}
}

// Framed returns a banner rendered inside an iframe.
func Framed(frame, el Node, keywords []string) Banner {
	return Banner{Kind: KindFramed, Element: el, Frame: frame, Keywords: keywords}
}

// ShadowHosted returns a banner found in the copy of a shadow tree.
func ShadowHosted(host, el Node, s Strategy, keywords []string) Banner {
	return Banner{Kind: KindShadowHosted, Element: el, Host: host, Strategy: s, Keywords: keywords}
}
