package modes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/blue-shark/internal/domain"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	all := c.All()
	require.Len(t, all, 5)
	require.Equal(t, domain.ModeProChat, all[0].Mode)

	tank, ok := c.Get(domain.ModeSharkTank)
	require.True(t, ok)
	require.True(t, tank.Dual)
	require.Equal(t, ModelFlash, tank.Primary.Model)
	require.Equal(t, ModelPro, tank.Secondary.Model)
}

func TestDeprecatedModeResolves(t *testing.T) {
	c := Default()

	cfg, ok := c.Get(domain.ModeFastChat)
	require.True(t, ok)
	require.Equal(t, domain.ModeSharkTank, cfg.Mode)
}

func TestParseOverridesAndAppends(t *testing.T) {
	data := []byte(`
modes:
  - mode: homework
    label: Tutor
    model: gemini-2.5-flash
    system_instruction: Explain slowly.
  - mode: POETRY
    label: Poet
    model: gemini-2.5-flash
    system_instruction: Answer in verse.
`)
	c, err := Parse(data)
	require.NoError(t, err)

	hw, ok := c.Get(domain.ModeHomework)
	require.True(t, ok)
	require.Equal(t, "gemini-2.5-flash", hw.Model)
	require.Equal(t, "Explain slowly.", hw.SystemInstruction)

	all := c.All()
	require.Len(t, all, 6)
	require.Equal(t, domain.Mode("POETRY"), all[5].Mode)
}

func TestParseRejectsIncompleteDual(t *testing.T) {
	_, err := Parse([]byte(`
modes:
  - mode: SHARK_TANK
    dual: true
    primary:
      model: gemini-3-flash-preview
`))
	require.Error(t, err)
}

func TestIsPremium(t *testing.T) {
	require.True(t, IsPremium(ModelPro))
	require.True(t, IsPremium(ModelDual))
	require.False(t, IsPremium(ModelFlash))
}
