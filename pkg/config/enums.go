package config

// RouterPolicy selects the routing objective.
type RouterPolicy string

const (
	// RouterPolicyQualityFirst prefers curated top-tier arms, bandit tie-break.
	RouterPolicyQualityFirst RouterPolicy = "quality_first"
	// RouterPolicyCostAware weights cost savings heavily in rewards.
	RouterPolicyCostAware RouterPolicy = "cost_aware"
	// RouterPolicyLatencyAware weights latency heavily in rewards.
	RouterPolicyLatencyAware RouterPolicy = "latency_aware"
)

// IsValid checks if the router policy is valid.
func (p RouterPolicy) IsValid() bool {
	switch p {
	case RouterPolicyQualityFirst, RouterPolicyCostAware, RouterPolicyLatencyAware:
		return true
	default:
		return false
	}
}

// BanditKind selects the bandit learner backing arm selection.
type BanditKind string

const (
	// BanditEpsilonGreedy explores uniformly with probability epsilon.
	BanditEpsilonGreedy BanditKind = "epsilon_greedy"
	// BanditUCB1 uses the UCB1 upper confidence bound over mean rewards.
	BanditUCB1 BanditKind = "ucb1"
	// BanditLinUCB uses diagonal LinUCB over context features.
	BanditLinUCB BanditKind = "linucb"
)

// IsValid checks if the bandit kind is valid.
func (k BanditKind) IsValid() bool {
	switch k {
	case BanditEpsilonGreedy, BanditUCB1, BanditLinUCB:
		return true
	default:
		return false
	}
}

// ProviderType identifies the wire format of a provider adapter.
type ProviderType string

const (
	// ProviderTypeAnthropic is the Anthropic messages API shape.
	ProviderTypeAnthropic ProviderType = "anthropic"
	// ProviderTypeOpenAI is the OpenAI chat-completions API shape.
	ProviderTypeOpenAI ProviderType = "openai"
)

// IsValid checks if the provider type is valid.
func (t ProviderType) IsValid() bool {
	return t == ProviderTypeAnthropic || t == ProviderTypeOpenAI
}

// CheckpointAction is what a matched checkpoint predicate does.
type CheckpointAction string

const (
	// CheckpointActionSkip finalizes the run with a skip result.
	CheckpointActionSkip CheckpointAction = "skip"
	// CheckpointActionFail fails the run with a policy error.
	CheckpointActionFail CheckpointAction = "fail"
)

// IsValid checks if the checkpoint action is valid.
func (a CheckpointAction) IsValid() bool {
	return a == CheckpointActionSkip || a == CheckpointActionFail
}

// CheckpointOp is a comparison operator inside a checkpoint predicate.
type CheckpointOp string

// Checkpoint predicate operators.
const (
	OpGreaterThan  CheckpointOp = "gt"
	OpGreaterEqual CheckpointOp = "ge"
	OpLessThan     CheckpointOp = "lt"
	OpLessEqual    CheckpointOp = "le"
	OpEqual        CheckpointOp = "eq"
	OpContains     CheckpointOp = "contains"
)

// IsValid checks if the operator is valid.
func (o CheckpointOp) IsValid() bool {
	switch o {
	case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual, OpEqual, OpContains:
		return true
	default:
		return false
	}
}
