package agent

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/boristopalov/ringrl/pkg/core"
	"github.com/boristopalov/ringrl/pkg/memory"
	"github.com/boristopalov/ringrl/pkg/spaces"
	"github.com/google/uuid"
)

const (
	SYSTEM_PROMPT = `You control the autonomous vehicles on a single-lane ring road shared with human drivers. Human drivers tend to form stop-and-go waves. Your goal is to keep every vehicle close to the target speed without collisions by choosing one acceleration per autonomous vehicle each step.`

	ACTION_PROMPT_TEMPLATE = `%s

Step %d. Vehicles are listed in ring order starting from the first autonomous vehicle.
%s
Recent steps:
%s
The target speed is %.2f m/s. Choose %d acceleration(s) in m/s^2, each between %.2f and %.2f.
Very briefly think step by step and then provide your answer as comma separated numbers following the string "ANSWER" like so: ANSWER:`
)

var answerPattern = regexp.MustCompile(`ANSWER:\s*([-+]?\d*\.?\d+(?:\s*,\s*[-+]?\d*\.?\d+)*)`)

type LLMClient interface {
	Complete(ctx context.Context, model string, prompt string) (string, error)
}

type ModelInfo struct {
	Id     string         // e.g. "gpt-4o-mini"
	Config map[string]any // model-specific configuration
}

// StepMemory is what the LLM policy remembers about one step
type StepMemory struct {
	Step    int
	Speeds  []float64
	Actions []float64
}

func (s StepMemory) String() string {
	return fmt.Sprintf("step %d: speeds=%s actions=%s", s.Step, formatFloats(s.Speeds), formatFloats(s.Actions))
}

// LLMPolicy asks a language model for the next accelerations
type LLMPolicy struct {
	id             string
	model          ModelInfo
	client         LLMClient
	memory         *memory.Memory[StepMemory]
	targetVelocity float64
	steps          int
}

type PolicyParams struct {
	Model          ModelInfo
	PolicyID       string
	Client         LLMClient
	MemorySize     int
	TargetVelocity float64
}

type PolicyOption func(*PolicyParams)

func WithModel(model ModelInfo) PolicyOption {
	return func(p *PolicyParams) {
		p.Model = model
	}
}

func WithPolicyID(id string) PolicyOption {
	return func(p *PolicyParams) {
		p.PolicyID = id
	}
}

func WithClient(c LLMClient) PolicyOption {
	return func(p *PolicyParams) {
		p.Client = c
	}
}

// WithMemory sets how many past steps are included in the prompt
func WithMemory(size int) PolicyOption {
	return func(p *PolicyParams) {
		p.MemorySize = size
	}
}

func WithTargetVelocity(v float64) PolicyOption {
	return func(p *PolicyParams) {
		p.TargetVelocity = v
	}
}

func defaultPolicyParams() *PolicyParams {
	return &PolicyParams{
		Model: ModelInfo{
			Id:     "gpt-4o-mini",
			Config: make(map[string]any),
		},
		PolicyID:       "llm-" + uuid.New().String(),
		MemorySize:     10,
		TargetVelocity: 20,
	}
}

func NewLLMPolicy(opts ...PolicyOption) (*LLMPolicy, error) {
	params := defaultPolicyParams()
	for _, opt := range opts {
		opt(params)
	}
	if params.Client == nil {
		return nil, fmt.Errorf("llm policy %s: no client configured", params.PolicyID)
	}

	return &LLMPolicy{
		id:             params.PolicyID,
		model:          params.Model,
		client:         params.Client,
		memory:         memory.NewMemory[StepMemory](params.MemorySize),
		targetVelocity: params.TargetVelocity,
	}, nil
}

func (p *LLMPolicy) GetID() string {
	return p.id
}

func (p *LLMPolicy) GetModel() ModelInfo {
	return p.model
}

func (p *LLMPolicy) GetMemory() *memory.Memory[StepMemory] {
	return p.memory
}

// Act prompts the model with the observation and recent history. A reply
// without a usable answer yields zero acceleration; only client failures
// are returned as errors.
func (p *LLMPolicy) Act(ctx context.Context, obs core.Observation, space spaces.Box) ([]float64, error) {
	dim := space.Dim()
	prompt := p.prompt(obs, space)

	response, err := p.client.Complete(ctx, p.model.Id, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %v", err)
	}
	log.Printf("Action response for policy %s: %s", p.id, response)

	actions, err := parseActionResponse(response, dim)
	if err != nil {
		log.Printf("policy %s: %v, falling back to zero acceleration", p.id, err)
		actions = make([]float64, dim)
	}
	actions, err = space.Clip(actions)
	if err != nil {
		return nil, err
	}

	p.memory.Store(StepMemory{
		Step:    p.steps,
		Speeds:  append([]float64(nil), obs.Speeds...),
		Actions: actions,
	})
	p.steps++
	return actions, nil
}

// Reset forgets the history between episodes
func (p *LLMPolicy) Reset() {
	p.memory.Clear()
	p.steps = 0
}

func (p *LLMPolicy) prompt(obs core.Observation, space spaces.Box) string {
	var vehicles strings.Builder
	for i, id := range obs.IDs {
		fmt.Fprintf(&vehicles, "%s: speed %.2f m/s, position %.3f\n", id, obs.Speeds[i], obs.Positions[i])
	}

	var history strings.Builder
	for _, m := range p.memory.All() {
		history.WriteString(m.String())
		history.WriteString("\n")
	}
	if history.Len() == 0 {
		history.WriteString("none\n")
	}

	lo, hi := 0.0, 0.0
	if space.Dim() > 0 {
		lo, hi = space.LowAt(0), space.HighAt(0)
	}
	return fmt.Sprintf(ACTION_PROMPT_TEMPLATE,
		SYSTEM_PROMPT,
		p.steps,
		vehicles.String(),
		history.String(),
		p.targetVelocity,
		space.Dim(),
		lo,
		hi,
	)
}

// parseActionResponse reads "ANSWER: a1, a2, ..." with exactly dim values
func parseActionResponse(response string, dim int) ([]float64, error) {
	matches := answerPattern.FindStringSubmatch(response)
	if len(matches) < 2 {
		return nil, fmt.Errorf("could not find answer in response: %s", response)
	}

	var actions []float64
	for _, field := range strings.Split(matches[1], ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("could not parse acceleration %q: %v", field, err)
		}
		actions = append(actions, v)
	}
	if len(actions) != dim {
		return nil, fmt.Errorf("expected %d accelerations, got %d", dim, len(actions))
	}
	return actions, nil
}

func formatFloats(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatFloat(x, 'f', 2, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
