package catalog_test

import (
	"testing"

	"github.com/reviewstudio/studio/internal/catalog"
	"github.com/reviewstudio/studio/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviders_DisplayOrder(t *testing.T) {
	c := catalog.New()
	ps := c.Providers()
	require.Len(t, ps, len(models.ProviderKinds))
	for i, k := range models.ProviderKinds {
		assert.Equal(t, k, ps[i].Kind)
		assert.NotEmpty(t, ps[i].Models, k)
	}
}

func TestLookup_ReturnsCopy(t *testing.T) {
	c := catalog.New()
	p, ok := c.Lookup(models.ProviderOpenAI)
	require.True(t, ok)
	p.Models[0] = "mutated"

	assert.Equal(t, "gpt-4o-mini", c.DefaultModel(models.ProviderOpenAI))

	_, ok = c.Lookup("mistral")
	assert.False(t, ok)
}

func TestDefaultModelAndSupports(t *testing.T) {
	c := catalog.New()
	assert.Equal(t, "gemini-2.5-flash", c.DefaultModel(models.ProviderGemini))
	assert.Equal(t, "", c.DefaultModel("mistral"))

	assert.True(t, c.Supports(models.ProviderXAI, "grok-4-fast-reasoning"))
	assert.False(t, c.Supports(models.ProviderXAI, "gpt-4o-mini"))
	assert.False(t, c.Supports("mistral", "anything"))
}

func TestCredentialEnv(t *testing.T) {
	c := catalog.New()
	assert.Equal(t, "XAI_API_KEY", c.CredentialEnv(models.ProviderXAI))
	assert.Equal(t, "", c.CredentialEnv("mistral"))
}

func TestStatuses_ManagedWinsOverSession(t *testing.T) {
	c := catalog.New()
	got := c.Statuses(
		map[models.ProviderKind]bool{models.ProviderGemini: true},
		map[models.ProviderKind]string{models.ProviderGemini: "k1", models.ProviderXAI: "k2"},
	)

	want := map[models.ProviderKind]models.CredentialSource{
		models.ProviderOpenAI:    models.CredentialMissing,
		models.ProviderGemini:    models.CredentialManaged,
		models.ProviderAnthropic: models.CredentialMissing,
		models.ProviderXAI:       models.CredentialSession,
	}
	require.Len(t, got, len(want))
	for i, st := range got {
		assert.Equal(t, models.ProviderKinds[i], st.Provider)
		assert.Equal(t, want[st.Provider], st.Source, st.Provider)
		assert.NotEmpty(t, st.EnvVar)
	}
}
