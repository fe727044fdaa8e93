package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboundFramesCarryTheirWireType(t *testing.T) {
	cases := []struct {
		name     string
		frame    any
		wantType string
	}{
		{"text input", NewTextInput("hello"), "text_input"},
		{"audio chunk", NewAudioChunk("QUJD", 1.5), "audio_chunk"},
		{"video frame", NewVideoFrame("QUJD", 2.0), "video_frame"},
		{"multimodal query", NewMultimodalQuery("what is this", "QUJD"), "multimodal_query"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := json.Marshal(tc.frame)
			require.NoError(t, err)

			var probe struct {
				Type string `json:"type"`
			}
			require.NoError(t, json.Unmarshal(raw, &probe))
			assert.Equal(t, tc.wantType, probe.Type)
		})
	}
}

func TestMultimodalQueryOmitsEmptyImage(t *testing.T) {
	raw, err := json.Marshal(NewMultimodalQuery("just text", ""))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"image"`)
}

func TestPlanEffectiveMaxRetries(t *testing.T) {
	assert.Equal(t, DefaultMaxRetries, Plan{Action: ActionClick}.EffectiveMaxRetries())
	assert.Equal(t, 5, Plan{Action: ActionClick, MaxRetries: 5}.EffectiveMaxRetries())
}

func TestPlanExecutionDerivesRecoveredWhenOmitted(t *testing.T) {
	var exec PlanExecution
	// Two attempts and a final success with no recovered key means the
	// server recovered after a failed first attempt.
	require.NoError(t, json.Unmarshal([]byte(`{"success":true,"attempts":2,"result":{"success":true}}`), &exec))
	assert.True(t, exec.Recovered)

	// A first-attempt success is not a recovery.
	exec = PlanExecution{}
	require.NoError(t, json.Unmarshal([]byte(`{"success":true,"attempts":1,"result":{"success":true}}`), &exec))
	assert.False(t, exec.Recovered)
}

func TestPlanExecutionHonorsExplicitRecovered(t *testing.T) {
	var exec PlanExecution
	require.NoError(t, json.Unmarshal([]byte(`{"success":true,"attempts":3,"recovered":false}`), &exec))
	assert.False(t, exec.Recovered)
}
