package export

import "encoding/json"

// JSONExporter renders ExportData as structured JSON.
type JSONExporter struct{}

type jsonOutput struct {
	Rules    []jsonRule    `json:"rules"`
	Patterns []jsonPattern `json:"patterns"`
	Episodes []jsonEpisode `json:"episodes"`
	Context  []jsonItem    `json:"context"`
}

type jsonRule struct {
	ID          string  `json:"id"`
	Condition   string  `json:"condition"`
	Consequence string  `json:"consequence"`
	Confidence  float64 `json:"confidence"`
}

type jsonPattern struct {
	ID         string  `json:"id"`
	Signature  string  `json:"signature"`
	Frequency  int     `json:"frequency"`
	Confidence float64 `json:"confidence"`
}

type jsonEpisode struct {
	ID         string  `json:"id"`
	Summary    string  `json:"summary"`
	Importance float64 `json:"importance"`
	CreatedAt  string  `json:"created_at"`
}

type jsonItem struct {
	ID         uint64  `json:"id"`
	Content    string  `json:"content"`
	TokenCost  int     `json:"token_cost"`
	Importance float64 `json:"importance"`
}

func (e *JSONExporter) Export(data ExportData) (string, error) {
	out := jsonOutput{
		Rules:    []jsonRule{},
		Patterns: []jsonPattern{},
		Episodes: []jsonEpisode{},
		Context:  []jsonItem{},
	}
	for _, r := range data.Rules {
		out.Rules = append(out.Rules, jsonRule{
			ID: r.ID, Condition: r.Condition, Consequence: r.Consequence, Confidence: r.Confidence,
		})
	}
	for _, p := range data.Patterns {
		out.Patterns = append(out.Patterns, jsonPattern{
			ID: p.ID, Signature: p.Signature, Frequency: p.Frequency, Confidence: p.Confidence,
		})
	}
	for _, ep := range data.Episodes {
		out.Episodes = append(out.Episodes, jsonEpisode{
			ID: ep.ID, Summary: ep.Summary, Importance: ep.Importance,
			CreatedAt: ep.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	for _, it := range data.Items {
		out.Context = append(out.Context, jsonItem{
			ID: it.ID, Content: it.Content, TokenCost: it.TokenCost, Importance: it.Importance,
		})
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
