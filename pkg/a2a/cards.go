package a2a

import (
	"strings"

	"github.com/paddockai/paddock/pkg/config"
)

// CardProtocolVersion is the discovery protocol version advertised in
// every card.
const CardProtocolVersion = "1.0"

// Skill is one advertised capability in a discovery card.
type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Card is a .well-known discovery document, either for the service as
// a whole or for one agent.
type Card struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Protocol    string  `json:"protocol"`
	Version     string  `json:"version"`
	URL         string  `json:"url"`
	Skills      []Skill `json:"skills"`
}

// ConfigSource exposes the agent configs cards are generated from.
type ConfigSource interface {
	Configs() []*config.AgentConfig
	GetConfig(path string) (*config.AgentConfig, error)
}

// CardGenerator produces discovery cards from the live registry; cards
// are never cached so a reload is reflected immediately.
type CardGenerator struct {
	serviceName string
	description string
	version     string
	baseURL     string
	source      ConfigSource
}

func NewCardGenerator(serviceName, description, version, baseURL string, source ConfigSource) *CardGenerator {
	return &CardGenerator{
		serviceName: serviceName,
		description: description,
		version:     version,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		source:      source,
	}
}

// ServiceCard is the /.well-known/agent.json document. It carries one
// skill per discoverable agent plus one per declared capability, the
// latter with ids prefixed "<agentId>:<capabilityId>".
func (g *CardGenerator) ServiceCard() *Card {
	card := &Card{
		Name:        g.serviceName,
		Description: g.description,
		Protocol:    CardProtocolVersion,
		Version:     g.version,
		URL:         g.baseURL,
		Skills:      []Skill{},
	}

	for _, cfg := range g.source.Configs() {
		if !cfg.Discoverable() {
			continue
		}
		card.Skills = append(card.Skills, Skill{
			ID:          cfg.ID,
			Name:        cfg.Name,
			Description: cfg.Description,
		})
		for _, capability := range capabilities(cfg) {
			card.Skills = append(card.Skills, Skill{
				ID:          cfg.ID + ":" + capability.ID,
				Name:        capability.Name,
				Description: capability.Description,
			})
		}
	}
	return card
}

// AgentCard is the per-agent /.well-known/agents/<path>/agent.json
// document, with bare capability ids. It is nil for unknown or
// non-discoverable paths.
func (g *CardGenerator) AgentCard(path string) *Card {
	cfg, err := g.source.GetConfig(path)
	if err != nil || !cfg.Discoverable() {
		return nil
	}

	card := &Card{
		Name:        cfg.Name,
		Description: cfg.Description,
		Protocol:    CardProtocolVersion,
		Version:     g.version,
		URL:         g.baseURL + "/agents/" + cfg.Path,
		Skills:      []Skill{},
	}
	for _, capability := range capabilities(cfg) {
		card.Skills = append(card.Skills, Skill{
			ID:          capability.ID,
			Name:        capability.Name,
			Description: capability.Description,
		})
	}
	return card
}

func capabilities(cfg *config.AgentConfig) []config.Capability {
	if cfg.Discovery == nil {
		return nil
	}
	return cfg.Discovery.Capabilities
}
