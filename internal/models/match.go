// internal/models/match.go
package models

// MetadataMatch binds a mentioned entity to a concrete schema object.
type MetadataMatch struct {
	EntityName         string                 `json:"entityName"`
	EntityType         EntityType             `json:"entityType"`
	MatchType          MatchType              `json:"matchType"`
	SimilarityScore    float64                `json:"similarityScore"`
	RelevantAttributes []string               `json:"relevantAttributes"`
	SuggestedJoins     []JoinSpec             `json:"suggestedJoins"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// Table returns the table a match refers to. Column matches carry the owning
// table under Metadata["table"].
func (m MetadataMatch) Table() string {
	if m.EntityType == EntityTypeTable {
		return m.EntityName
	}
	if t, ok := m.Metadata["table"].(string); ok {
		return t
	}
	return ""
}

type JoinSpec struct {
	Type        string  `json:"type"`
	LeftTable   string  `json:"leftTable"`
	RightTable  string  `json:"rightTable"`
	LeftColumn  string  `json:"leftColumn"`
	RightColumn string  `json:"rightColumn"`
	Confidence  float64 `json:"confidence"`
}

// Connects reports whether the join links tables a and b in either direction.
func (j JoinSpec) Connects(a, b string) bool {
	return (j.LeftTable == a && j.RightTable == b) || (j.LeftTable == b && j.RightTable == a)
}

// SearchResult is one hit returned by the embedding store.
type SearchResult struct {
	EntityName      string                 `json:"entityName"`
	EntityType      string                 `json:"entityType"`
	SimilarityScore float64                `json:"similarityScore"`
	Content         string                 `json:"content"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	SemanticTags    []string               `json:"semanticTags,omitempty"`
}
