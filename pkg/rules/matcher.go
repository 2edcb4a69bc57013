package rules

// MatchSource says which table produced a match.
type MatchSource uint8

const (
	MatchMint MatchSource = iota + 1
	MatchDeployer
)

func (s MatchSource) String() string {
	switch s {
	case MatchMint:
		return "mint"
	case MatchDeployer:
		return "deployer"
	default:
		return "none"
	}
}

// Match is a rule selected for a token.
type Match struct {
	Rule   SnipeRule
	Source MatchSource
}

// MatchRule selects the rule for a new pool. A mint rule takes priority
// over a deployer rule.
func MatchRule(rb *RuleBook, mint, deployer string) (Match, bool) {
	if rb == nil {
		return Match{}, false
	}
	if r, ok := rb.MintRule(mint); ok {
		return Match{Rule: r, Source: MatchMint}, true
	}
	if r, ok := rb.DeployerRule(deployer); ok {
		return Match{Rule: r, Source: MatchDeployer}, true
	}
	return Match{}, false
}
