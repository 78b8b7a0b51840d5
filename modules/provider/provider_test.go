package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storybook-scene-server/modules/common/apierror"
)

func TestSelectGeneratorDefaults(t *testing.T) {
	tests := []struct {
		name     string
		av       Availability
		expected string
	}{
		{
			name:     "gemini with reference image wins",
			av:       Availability{GeminiConfigured: true, RunwareConfigured: true, HasReferenceImage: true},
			expected: NameGemini,
		},
		{
			name:     "no reference image falls to runware",
			av:       Availability{GeminiConfigured: true, RunwareConfigured: true, HasReferenceImage: false},
			expected: NameRunware,
		},
		{
			name:     "gemini text-only when runware missing",
			av:       Availability{GeminiConfigured: true, RunwareConfigured: false, HasReferenceImage: false},
			expected: NameGemini,
		},
		{
			name:     "runware when gemini missing even with reference image",
			av:       Availability{GeminiConfigured: false, RunwareConfigured: true, HasReferenceImage: true},
			expected: NameRunware,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chosen, err := SelectGenerator("", tt.av)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, chosen)
		})
	}
}

func TestSelectGeneratorNoneConfigured(t *testing.T) {
	_, err := SelectGenerator("", Availability{})

	require.Error(t, err)
	assert.Equal(t, apierror.KindProviderUnavailable, apierror.KindOf(err))
}

func TestSelectGeneratorExplicit(t *testing.T) {
	av := Availability{GeminiConfigured: true, RunwareConfigured: true, HasReferenceImage: true}

	// explicit 지정은 기본 우선순위를 무시한다
	chosen, err := SelectGenerator(NameRunware, av)
	require.NoError(t, err)
	assert.Equal(t, NameRunware, chosen)

	chosen, err = SelectGenerator(NameGemini, av)
	require.NoError(t, err)
	assert.Equal(t, NameGemini, chosen)
}

func TestSelectGeneratorExplicitUnavailable(t *testing.T) {
	_, err := SelectGenerator(NameRunware, Availability{GeminiConfigured: true})

	require.Error(t, err)
	assert.Equal(t, apierror.KindProviderUnavailable, apierror.KindOf(err))
}

func TestSelectGeneratorUnknownName(t *testing.T) {
	_, err := SelectGenerator("dalle", Availability{GeminiConfigured: true})

	require.Error(t, err)
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
}

func TestSelectEditor(t *testing.T) {
	chosen, err := SelectEditor("", EditAvailability{PrimaryConfigured: true, SecondaryConfigured: true})
	require.NoError(t, err)
	assert.Equal(t, NameGemini, chosen)

	chosen, err = SelectEditor("", EditAvailability{SecondaryConfigured: true})
	require.NoError(t, err)
	assert.Equal(t, NameRunware, chosen)

	_, err = SelectEditor("", EditAvailability{})
	require.Error(t, err)
	assert.Equal(t, apierror.KindProviderUnavailable, apierror.KindOf(err))
}

func TestSelectEditorExplicit(t *testing.T) {
	chosen, err := SelectEditor(NameRunware, EditAvailability{PrimaryConfigured: true, SecondaryConfigured: true})
	require.NoError(t, err)
	assert.Equal(t, NameRunware, chosen)

	_, err = SelectEditor(NameGemini, EditAvailability{SecondaryConfigured: true})
	require.Error(t, err)
	assert.Equal(t, apierror.KindProviderUnavailable, apierror.KindOf(err))

	_, err = SelectEditor("midjourney", EditAvailability{PrimaryConfigured: true})
	require.Error(t, err)
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
}

func TestResultHasImage(t *testing.T) {
	assert.False(t, (*Result)(nil).HasImage())
	assert.False(t, (&Result{}).HasImage())
	assert.True(t, (&Result{ImageURL: "https://cdn.example.com/a.png"}).HasImage())
	assert.True(t, (&Result{ImageBase64: "aGVsbG8="}).HasImage())
}
