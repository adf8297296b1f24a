package verify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rlm-translate/internal/config"
	"rlm-translate/internal/contextpkg"
	rlmerrors "rlm-translate/internal/errors"
	"rlm-translate/internal/llm"
	"rlm-translate/internal/logging"
	"rlm-translate/internal/state"
)

func emptyPackage() *contextpkg.Package {
	return &contextpkg.Package{}
}

func newLLMVerifier(t *testing.T, responses ...llm.ScriptedResponse) (*Verifier, *llm.Gateway, *llm.ScriptedClient) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Engine.RootModel = "root-model"
	cfg.Engine.SubModel = "sub-model"
	cfg.Engine.VerifierModel = "verifier-model"

	client := llm.NewScriptedClient(responses...)
	gw := llm.NewGatewayWithClient(client, cfg, logging.NewNop())

	v := New(nil)
	v.EnableLLMPass(gw)
	return v, gw, client
}

func TestVerifyCleanTranslation(t *testing.T) {
	v := New(nil)
	translation := strings.Repeat("시스템의 전체 구조를 설명한다. ", 6)
	original := strings.Repeat("전체 구조에 대한 원문 문장입니다. ", 6)

	res := v.Verify(context.Background(), translation, original, emptyPackage(), state.PresetGeneral, DefaultOptions())

	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.RepairType)
	assert.Equal(t, "Translation passed all validations", res.Summary())
}

func TestVerifyEmptyTranslation(t *testing.T) {
	v := New(nil)

	for _, translation := range []string{"", "   \n\t  "} {
		res := v.Verify(context.Background(), translation, "원문입니다.", emptyPackage(), state.PresetGeneral, DefaultOptions())

		assert.False(t, res.Valid)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, KindCompletion, res.Errors[0].Kind)
		assert.Equal(t, "Translation is empty", res.Errors[0].Message)
		assert.Equal(t, SeverityHard, res.Errors[0].Severity)
		assert.Equal(t, state.RepairReTranslate, res.RepairType)
		assert.Equal(t, "Re-translate the chunk completely", res.RepairDescription)
	}
}

func TestVerifyTruncation(t *testing.T) {
	v := New(nil)

	for _, translation := range []string{
		"이 문장은 번역 도중에 잘렸습니다...",
		"이 문장도 도중에 끊겼습니다…",
	} {
		res := v.Verify(context.Background(), translation, "원문입니다.", emptyPackage(), state.PresetGeneral, DefaultOptions())

		assert.False(t, res.Valid)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, KindCompletion, res.Errors[0].Kind)
		assert.Contains(t, res.Errors[0].Message, "truncated")
		assert.Equal(t, state.RepairReTranslate, res.RepairType)

		// Not silenced by the sentence and length toggles.
		res = v.Verify(context.Background(), translation, "원문입니다.", emptyPackage(), state.PresetGeneral,
			Options{CheckSentence: false, CheckLength: false})
		assert.False(t, res.Valid)
	}
}

func TestVerifyIncompleteSentence(t *testing.T) {
	v := New(nil)
	translation := strings.Repeat("번역 내용이 이어진다 ", 6) + "그리고"
	original := translation

	res := v.Verify(context.Background(), translation, original, emptyPackage(), state.PresetGeneral, DefaultOptions())
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "does not end with a complete sentence")

	res = v.Verify(context.Background(), translation, original, emptyPackage(), state.PresetGeneral,
		Options{CheckSentence: false, CheckLength: true})
	assert.True(t, res.Valid)
}

func TestVerifyIncompleteSentenceShortTextExempt(t *testing.T) {
	v := New(nil)

	res := v.Verify(context.Background(), "짧은 문장", "short text", emptyPackage(), state.PresetGeneral, DefaultOptions())
	assert.True(t, res.Valid)
}

func TestVerifyPoliteEnding(t *testing.T) {
	v := New(nil)
	translation := strings.Repeat("구성 요소를 하나씩 살펴보겠습니다 ", 5)
	translation = strings.TrimSpace(translation) + "요."

	res := v.Verify(context.Background(), translation, translation, emptyPackage(), state.PresetGeneral, DefaultOptions())
	assert.True(t, res.Valid)
}

func TestVerifyLengthFloor(t *testing.T) {
	v := New(nil)
	original := strings.Repeat("a", 150)
	translation := "짧은 요약입니다."

	res := v.Verify(context.Background(), translation, original, emptyPackage(), state.PresetGeneral, DefaultOptions())
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, KindCompletion, res.Errors[0].Kind)
	assert.Contains(t, res.Errors[0].Message, "<50%")
	assert.Equal(t, state.RepairReTranslate, res.RepairType)

	res = v.Verify(context.Background(), translation, original, emptyPackage(), state.PresetGeneral,
		Options{CheckSentence: true, CheckLength: false})
	assert.True(t, res.Valid)
}

func TestVerifyLengthFloorBoundary(t *testing.T) {
	v := New(nil)
	original := strings.Repeat("b", 100)

	res := v.Verify(context.Background(), "짧다.", original, emptyPackage(), state.PresetGeneral, DefaultOptions())
	assert.True(t, res.Valid)
}

func TestVerifyLengthCeiling(t *testing.T) {
	v := New(nil)
	original := "짧다."
	translation := strings.Repeat("길게 늘어난 번역. ", 2)

	res := v.Verify(context.Background(), translation, original, emptyPackage(), state.PresetGeneral, DefaultOptions())

	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, KindCompletion, res.Warnings[0].Kind)
	assert.Contains(t, res.Warnings[0].Message, ">3x")
	assert.Empty(t, res.RepairType)
}

func TestVerifyForbiddenContent(t *testing.T) {
	v := New(nil)
	pkg := &contextpkg.Package{
		StyleGuide: state.StyleGuide{
			ForbiddenWords:   []string{"machine"},
			ForbiddenPhrases: []string{"as an AI"},
		},
	}
	translation := "The Machine hums loudly. As an AI I decline politely."

	res := v.Verify(context.Background(), translation, translation, pkg, state.PresetGeneral, DefaultOptions())

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, KindForbidden, res.Errors[0].Kind)
	assert.Contains(t, res.Errors[0].Message, "'machine'")
	assert.Contains(t, res.Errors[1].Message, "'as an AI'")
	assert.Equal(t, state.RepairTemplateReinforce, res.RepairType)
	assert.Equal(t, "Remove forbidden content and re-translate", res.RepairDescription)
}

func TestVerifyForbiddenWinsRepairPriority(t *testing.T) {
	v := New(nil)
	pkg := &contextpkg.Package{
		StyleGuide: state.StyleGuide{ForbiddenWords: []string{"machine"}},
	}

	res := v.Verify(context.Background(), "Machine output was cut...", "원문입니다.", pkg, state.PresetGeneral, DefaultOptions())

	assert.False(t, res.Valid)
	assert.ElementsMatch(t, []Kind{KindCompletion, KindForbidden}, res.HardKinds())
	assert.Equal(t, state.RepairTemplateReinforce, res.RepairType)
}

func TestVerifySubtitleFormat(t *testing.T) {
	v := New(nil)

	res := v.Verify(context.Background(), "자연스러운 대사입니다.", "A natural line.", emptyPackage(), state.PresetSubtitle, DefaultOptions())
	assert.True(t, res.Valid)

	direct := newResult()
	checkSubtitleFormat(direct, "\n   \n")
	assert.False(t, direct.Valid)
	require.Len(t, direct.Errors, 1)
	assert.Equal(t, KindFormat, direct.Errors[0].Kind)
}

func TestVerifyPatentWarnings(t *testing.T) {
	v := New(nil)

	res := v.Verify(context.Background(), "청구항에 따른 모터 조립체로서 축을 포함한다.", "claim text", emptyPackage(), state.PresetPatent, DefaultOptions())
	assert.True(t, res.Valid)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, KindStructure, res.Warnings[0].Kind)
	assert.Contains(t, res.Warnings[0].Message, "claim numbers")
	assert.Contains(t, res.Warnings[1].Message, "wherein")

	res = v.Verify(context.Background(), "청구항 10 에 있어서, wherein 모터를 포함한다.",
		"In claim 10, wherein the motor is included therein.", emptyPackage(), state.PresetPatent, DefaultOptions())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Warnings)
}

func TestVerifyPaperWarning(t *testing.T) {
	v := New(nil)

	res := v.Verify(context.Background(), "하나의 문장만 있다.", "one sentence only here.", emptyPackage(), state.PresetPaper, DefaultOptions())
	assert.True(t, res.Valid)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "sentence structure")

	res = v.Verify(context.Background(), "첫째다. 둘째다. 셋째다.", "three sentences. right here. done.", emptyPackage(), state.PresetPaper, DefaultOptions())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Warnings)
}

func TestVerifyTerminologyCoverage(t *testing.T) {
	v := New(nil)
	pkg := &contextpkg.Package{HardGlossary: map[string]string{"Motor": "모터"}}

	res := v.Verify(context.Background(), "the motor spins quietly.", "모터가 조용히 회전한다.", pkg, state.PresetGeneral, DefaultOptions())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Warnings)

	res = v.Verify(context.Background(), "the bearing spins quietly.", "모터가 조용히 회전한다.", pkg, state.PresetGeneral, DefaultOptions())
	assert.True(t, res.Valid)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, KindTerminology, res.Warnings[0].Kind)
	assert.Equal(t, "Glossary term 'Motor' not found in translation", res.Warnings[0].Message)
}

func TestVerifyTerminologyFirstTenOnly(t *testing.T) {
	v := New(nil)
	hard := map[string]string{
		"t01": "a", "t02": "b", "t03": "c", "t04": "d", "t05": "e", "t06": "f",
		"t07": "g", "t08": "h", "t09": "i", "t10": "j", "t11": "k", "t12": "l",
	}
	pkg := &contextpkg.Package{HardGlossary: hard}

	res := v.Verify(context.Background(), "해당 용어가 없다.", "no matching terms here.", pkg, state.PresetGeneral, DefaultOptions())

	require.Len(t, res.Warnings, 10)
	assert.Contains(t, res.Warnings[0].Message, "'t01'")
	assert.Contains(t, res.Warnings[9].Message, "'t10'")
}

func TestDetermineRepair(t *testing.T) {
	res := newResult()
	res.addError(KindFormat, "broken layout", SeverityHard)
	determineRepair(res)
	assert.Equal(t, state.RepairTemplateReinforce, res.RepairType)
	assert.Equal(t, "Fix formatting errors and re-translate", res.RepairDescription)

	res = newResult()
	res.addError(KindTone, "tone drift", SeverityHard)
	determineRepair(res)
	assert.Equal(t, state.RepairReTranslate, res.RepairType)
	assert.Equal(t, "Re-translate with corrections", res.RepairDescription)

	res = newResult()
	res.addError(KindTone, "tone drift", SeveritySoft)
	determineRepair(res)
	assert.Empty(t, res.RepairType)
}

func TestVerifyLLMPassAddsModelNote(t *testing.T) {
	v, gw, client := newLLMVerifier(t, llm.ScriptedResponse{
		Content: "Tone drifts toward casual; meaning intact.\nSecond line is dropped.",
	})

	res := v.Verify(context.Background(), "", "원문입니다.", emptyPackage(), state.PresetGeneral, DefaultOptions())

	assert.False(t, res.Valid)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, KindTone, res.Warnings[0].Kind)
	assert.Equal(t, "Model review: Tone drifts toward casual; meaning intact.", res.Warnings[0].Message)

	require.Equal(t, 1, client.CallCount())
	assert.Equal(t, "verifier-model", client.Calls()[0].Model)
	assert.Equal(t, 1, gw.Costs().VerifierCalls)
}

func TestVerifyLLMPassSkippedWhenValid(t *testing.T) {
	v, _, client := newLLMVerifier(t, llm.ScriptedResponse{Content: "unused"})

	res := v.Verify(context.Background(), "정상적인 번역입니다.", "a fine translation.", emptyPackage(), state.PresetGeneral, DefaultOptions())

	assert.True(t, res.Valid)
	assert.Equal(t, 0, client.CallCount())
}

func TestVerifyLLMPassFailureFallsBack(t *testing.T) {
	v, _, client := newLLMVerifier(t, llm.ScriptedResponse{
		Err: rlmerrors.NewProviderError("scripted", "verifier-model", rlmerrors.ErrorCodeProviderServer, "backend unavailable", nil),
	})

	res := v.Verify(context.Background(), "", "원문입니다.", emptyPackage(), state.PresetGeneral, DefaultOptions())

	assert.False(t, res.Valid)
	assert.Equal(t, state.RepairReTranslate, res.RepairType)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "could benefit from model review")
	assert.Equal(t, 1, client.CallCount())
}
