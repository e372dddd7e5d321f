package intent

import (
	"context"
	"testing"

	"github.com/artloom/artloom/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestRulesUploadsBecomeEditOperations(t *testing.T) {
	r := NewRulesResolver()
	res, err := r.Resolve(context.Background(), Request{
		Message: "make these look vintage",
		UploadedImageURLs: []string{
			"http://media.test/files/a.png",
			"http://media.test/files/b.png",
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.IntentCreateAgents, res.Intent)
	require.True(t, res.AutoGenerate)
	require.Len(t, res.Operations, 2)
	for i, op := range res.Operations {
		require.Equal(t, models.KindImageEdit, op.Kind)
		require.Equal(t, "make these look vintage", op.Prompt)
		require.NotNil(t, op.InputSource)
		require.Equal(t, models.SourceUploadedFile, op.InputSource.Type)
		require.NotEmpty(t, op.InputSource.FileURL, "operation %d", i)
	}
}

func TestRulesReferencedAgentsBecomeModify(t *testing.T) {
	r := NewRulesResolver()
	res, err := r.Resolve(context.Background(), Request{
		Message: "give it a warmer tone",
		ReferencedAgents: []models.Agent{
			{ID: "a1", Kind: models.KindImageGenerate, Tier: models.TierPro},
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.IntentModifyAgents, res.Intent)
	require.Len(t, res.Operations, 1)
	op := res.Operations[0]
	require.Equal(t, models.KindImageEdit, op.Kind)
	require.Equal(t, models.TierPro, op.Tier)
	require.Equal(t, models.SourceAgentConnection, op.InputSource.Type)
	require.Equal(t, "a1", op.InputSource.SourceAgentID)
}

func TestRulesKeywordKinds(t *testing.T) {
	cases := []struct {
		message string
		kind    models.AgentKind
	}{
		{"generate an image of a lighthouse", models.KindImageGenerate},
		{"make a voice narration of this text", models.KindVoiceGenerate},
		{"create a short video of waves", models.KindVideoGenerate},
		{"draw a mountain sunrise", models.KindImageGenerate},
	}
	r := NewRulesResolver()
	for _, tc := range cases {
		res, err := r.Resolve(context.Background(), Request{Message: tc.message})
		require.NoError(t, err, tc.message)
		require.Equal(t, models.IntentCreateAgents, res.Intent, tc.message)
		require.Len(t, res.Operations, 1, tc.message)
		require.Equal(t, tc.kind, res.Operations[0].Kind, tc.message)
		require.True(t, res.AutoGenerate, tc.message)
		require.NotEmpty(t, res.Response, tc.message)
	}
}

func TestRulesOperationsAlwaysCarryResponse(t *testing.T) {
	r := NewRulesResolver()

	res, err := r.Resolve(context.Background(), Request{
		Message: "remove the background",
		UploadedImageURLs: []string{
			"http://media.test/files/a.png",
			"http://media.test/files/b.png",
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Operations, 2)
	require.Equal(t, "Creating 2 image-edit agents from your uploads.", res.Response)

	res, err = r.Resolve(context.Background(), Request{
		Message: "remove the background",
		UploadedImageURLs: []string{
			"http://media.test/files/a.png",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Creating 1 image-edit agent from your upload.", res.Response)

	res, err = r.Resolve(context.Background(), Request{
		Message: "give it a warmer tone",
		ReferencedAgents: []models.Agent{
			{ID: "a1", Kind: models.KindImageGenerate},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Applying your changes to 1 referenced agent.", res.Response)

	res, err = r.Resolve(context.Background(), Request{Message: "make a voice narration"})
	require.NoError(t, err)
	require.Equal(t, "Creating a voice agent and starting generation.", res.Response)
}

func TestRulesFallsBackToChat(t *testing.T) {
	r := NewRulesResolver()
	res, err := r.Resolve(context.Background(), Request{Message: "what can you do?"})
	require.NoError(t, err)
	require.Equal(t, models.IntentGeneralChat, res.Intent)
	require.NotEmpty(t, res.Response)
	require.Empty(t, res.Operations)
	require.InDelta(t, 0.5, res.Confidence, 0.001)
}
