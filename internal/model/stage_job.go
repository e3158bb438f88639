package model

// Stage names, in pipeline order. Embed and events both follow chunk and
// run independently of each other.
const (
	StageExtract = "extract"
	StageChunk   = "chunk"
	StageEmbed   = "embed"
	StageEvents  = "events"
)

// StageJob is the queue message that asks a worker to run one stage for
// one document version. Attempt counts failed runs so far.
type StageJob struct {
	VersionID uint   `json:"version_id"`
	Stage     string `json:"stage"`
	Locator   string `json:"locator,omitempty"`
	Attempt   int    `json:"attempt"`
}

func ValidStage(stage string) bool {
	switch stage {
	case StageExtract, StageChunk, StageEmbed, StageEvents:
		return true
	}
	return false
}
