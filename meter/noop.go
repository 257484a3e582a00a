package meter

import "github.com/ineyio/chatrelay"

// NoopMeter discards all events.
type NoopMeter struct{}

var _ chatrelay.Meter = (*NoopMeter)(nil)

func (*NoopMeter) OnStage(chatrelay.StageEvent)   {}
func (*NoopMeter) OnResult(chatrelay.ResultEvent) {}
