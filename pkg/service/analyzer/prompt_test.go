package analyzer_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/analyzer"
)

func TestBuildSystemPrompt(t *testing.T) {
	t.Run("voice prompt lists every action type", func(t *testing.T) {
		prompt, err := analyzer.BuildSystemPrompt(types.ChannelVoice, false)
		gt.NoError(t, err).Required()

		for _, at := range types.AllActionTypes() {
			gt.String(t, prompt).Contains("`" + at.String() + "`")
		}
		gt.String(t, prompt).Contains("call transcript")
		gt.String(t, prompt).Contains("speech recognition")
		gt.String(t, prompt).Contains("Don't email me")
		gt.String(t, prompt).NotContains("Return ONLY the JSON object")
	})

	t.Run("email prompt has thread guidance", func(t *testing.T) {
		prompt, err := analyzer.BuildSystemPrompt(types.ChannelEmail, false)
		gt.NoError(t, err).Required()

		gt.String(t, prompt).Contains("email thread")
		gt.String(t, prompt).Contains("unsubscribe")
		gt.String(t, prompt).NotContains("speech recognition")
	})

	t.Run("strict prompt demands bare JSON", func(t *testing.T) {
		prompt, err := analyzer.BuildSystemPrompt(types.ChannelVoice, true)
		gt.NoError(t, err).Required()
		gt.String(t, prompt).Contains("Return ONLY the JSON object")
	})
}
