package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rlm-translate/internal/cache"
	"rlm-translate/internal/config"
	rlmerrors "rlm-translate/internal/errors"
	"rlm-translate/internal/llm"
	"rlm-translate/internal/logging"
	"rlm-translate/internal/preset"
	"rlm-translate/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestOrchestrator(t *testing.T, mutate func(*Config), responses ...llm.ScriptedResponse) (*Orchestrator, *llm.ScriptedClient) {
	t.Helper()

	ccfg := config.DefaultConfig()
	ccfg.Engine.RootModel = "root-model"
	ccfg.Engine.SubModel = "sub-model"
	ccfg.Engine.VerifierModel = "verifier-model"

	client := llm.NewScriptedClient(responses...)
	gw := llm.NewGatewayWithClient(client, ccfg, logging.NewNop())

	cfg := Config{
		Gateway:    gw,
		Preset:     preset.BuiltinPresets()["general"],
		PresetType: state.PresetGeneral,
		SourceLang: "en",
		TargetLang: "ko",
		MaxRetries: ccfg.Engine.MaxRetries,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	o, err := New(cfg)
	require.NoError(t, err)
	return o, client
}

func planChunks(texts ...string) []state.Chunk {
	chunks := make([]state.Chunk, len(texts))
	offset := 0
	for i, txt := range texts {
		chunks[i] = state.Chunk{Index: i, OffsetStart: offset, OffsetEnd: offset + len(txt), Text: txt}
		offset += len(txt)
	}
	return chunks
}

func scripted(translated string) llm.ScriptedResponse {
	return llm.ScriptedResponse{
		Content: "```json\n" + `{"translated_text": "` + translated + `"}` + "\n```",
		Cost:    0.001,
	}
}

type recordingObserver struct {
	steps      []string
	progress   []string
	flags      []state.ChunkStatus
	repairs    []state.RepairType
	repairMsgs []string
	costCalls  int
	lastCost   float64
	lastChunks int
}

func (r *recordingObserver) Progress(msg string, _ float64) { r.progress = append(r.progress, msg) }
func (r *recordingObserver) Step(name string)               { r.steps = append(r.steps, name) }
func (r *recordingObserver) QualityFlags(flags []state.ChunkStatus) {
	r.flags = append(r.flags, flags...)
}
func (r *recordingObserver) CostStats(cost float64, calls, chunks int) {
	r.costCalls++
	r.lastCost = cost
	r.lastChunks = chunks
}
func (r *recordingObserver) Repair(rt state.RepairType, msg string) {
	r.repairs = append(r.repairs, rt)
	r.repairMsgs = append(r.repairMsgs, msg)
}

func TestNewRequiresGatewayAndPreset(t *testing.T) {
	_, err := New(Config{Preset: preset.BuiltinPresets()["general"]})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway")

	ccfg := config.DefaultConfig()
	gw := llm.NewGatewayWithClient(llm.NewScriptedClient(), ccfg, logging.NewNop())
	_, err = New(Config{Gateway: gw})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preset")
}

func TestRunSequentialCompletes(t *testing.T) {
	o, client := newTestOrchestrator(t, func(cfg *Config) {
		cfg.CheckSentence = true
		cfg.CheckLength = true
	},
		scripted("모터가 회전한다."),
		scripted("밸브가 열린다."),
		scripted("펌프가 멈춘다."),
	)
	o.SetChunks(planChunks("The motor rotates.", "The valve opens.", "The pump stops."))

	res, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Completed)
	assert.Equal(t, 3, res.TotalChunks)
	assert.Equal(t, 3, res.SuccessChunks)
	assert.Equal(t, 0, res.ErrorChunks)
	assert.Equal(t, 4, res.Rounds)
	assert.Equal(t, 3, res.TotalCalls)
	assert.InDelta(t, 0.003, res.TotalCost, 1e-9)
	assert.Equal(t, 3, client.CallCount())

	st := o.State()
	assert.Equal(t, []string{"모터가 회전한다.", "밸브가 열린다.", "펌프가 멈춘다."}, st.TranslationHistory)
	assert.Equal(t, []bool{true, true, true}, st.Plan.Committed)
	assert.Equal(t, 3, st.Costs.SubCalls)
	require.Len(t, st.HistorySummaries, 3)
	assert.Equal(t, "Chunk 3/3 completed successfully", st.HistorySummaries[2])
}

func TestExecuteRoundPhaseOrder(t *testing.T) {
	obs := &recordingObserver{}
	o, _ := newTestOrchestrator(t, func(cfg *Config) {
		cfg.Observer = obs
	}, scripted("모터가 회전한다."))
	o.SetChunks(planChunks("The motor rotates."))

	round, err := o.ExecuteRound(context.Background())
	require.NoError(t, err)
	assert.False(t, round.Completed)
	assert.Equal(t, 0, round.ChunkIndex)
	assert.Equal(t, state.StatusFresh, round.Status)
	assert.Equal(t, 0, round.Repairs)
	assert.Equal(t, "모터가 회전한다.", round.Translation)
	assert.Equal(t, []string{PhasePlan, PhaseRetrieve, PhaseTranslate, PhaseVerify, PhaseCommit}, obs.steps)
	assert.Equal(t, []state.ChunkStatus{state.StatusFresh}, obs.flags)
	assert.Equal(t, 1, obs.costCalls)
	assert.Equal(t, 1, obs.lastChunks)

	sentinel, err := o.ExecuteRound(context.Background())
	require.NoError(t, err)
	assert.True(t, sentinel.Completed)
	assert.Equal(t, -1, sentinel.ChunkIndex)
	assert.Equal(t, PhasePlan, obs.steps[len(obs.steps)-1])
}

func TestRepairReinforceOnForbiddenContent(t *testing.T) {
	obs := &recordingObserver{}
	o, client := newTestOrchestrator(t, func(cfg *Config) {
		cfg.Observer = obs
		cfg.Style = &state.StyleGuide{ForbiddenWords: []string{"금지"}}
	},
		scripted("이 문장은 금지 단어 포함."),
		scripted("깨끗한 문장이다."),
	)
	o.SetChunks(planChunks("This sentence mentions a banned word."))

	round, err := o.ExecuteRound(context.Background())
	require.NoError(t, err)

	assert.Equal(t, state.StatusRepaired, round.Status)
	assert.Equal(t, 1, round.Repairs)
	assert.Equal(t, "깨끗한 문장이다.", round.Translation)
	assert.Equal(t, []state.RepairType{state.RepairTemplateReinforce}, obs.repairs)
	assert.Equal(t, []string{"Remove forbidden content and re-translate"}, obs.repairMsgs)
	assert.Equal(t, 1, o.State().Quality.RetryCount["forbidden"])
	assert.Equal(t, "깨끗한 문장이다.", o.State().TranslationHistory[0])

	calls := client.Calls()
	require.Len(t, calls, 2)
	reinforceMsg := calls[1].Messages[1].Content
	assert.Contains(t, reinforceMsg, "The previous attempt was rejected:")
	assert.Contains(t, reinforceMsg, "Contains forbidden word: '금지'")
	assert.Contains(t, reinforceMsg, "이 문장은 금지 단어 포함.")
}

func TestRetryExhaustionMarksFailedAndRunContinues(t *testing.T) {
	o, client := newTestOrchestrator(t, func(cfg *Config) {
		cfg.MaxRetries = 1
	},
		scripted("계속된다..."),
		scripted("계속된다..."),
		scripted("다른 문장이다."),
	)
	o.SetChunks(planChunks("The story continues without end.", "Another sentence."))

	res, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.Completed)
	assert.Equal(t, 1, res.SuccessChunks)
	assert.Equal(t, 1, res.ErrorChunks)
	assert.Equal(t, 3, res.Rounds)
	assert.Equal(t, 3, client.CallCount())

	st := o.State()
	require.Len(t, st.Quality.ErrorChunks, 1)
	assert.Equal(t, 0, st.Quality.ErrorChunks[0].Index)
	assert.Equal(t, "completion", st.Quality.ErrorChunks[0].Kind)
	assert.Equal(t, "Translation appears truncated (ends with '...')", st.Quality.ErrorChunks[0].Message)
	assert.Equal(t, 1, st.Quality.RetryCount["completion"])
	assert.Equal(t, "계속된다...", st.TranslationHistory[0])
	assert.Equal(t, "다른 문장이다.", st.TranslationHistory[1])
	require.Len(t, st.HistorySummaries, 2)
	assert.Equal(t, "Chunk 1/2 failed: Translation appears truncated (ends with '...')", st.HistorySummaries[0])
	assert.Equal(t, "Chunk 2/2 completed successfully", st.HistorySummaries[1])
}

func TestZeroRetriesFailsWithoutRepair(t *testing.T) {
	o, client := newTestOrchestrator(t, func(cfg *Config) {
		cfg.MaxRetries = 0
	}, scripted("계속된다..."))
	o.SetChunks(planChunks("The story continues without end."))

	round, err := o.ExecuteRound(context.Background())
	require.NoError(t, err)

	assert.Equal(t, state.StatusFailed, round.Status)
	assert.Equal(t, 0, round.Repairs)
	assert.Equal(t, 1, client.CallCount())
	assert.Equal(t, 1, o.State().Quality.FailedChunks)
}

func TestProviderErrorRepairedWithinBudget(t *testing.T) {
	o, client := newTestOrchestrator(t, nil,
		llm.ScriptedResponse{Err: rlmerrors.NewProviderError("scripted", "sub-model", rlmerrors.ErrorCodeProviderServer, "internal error", nil)},
		scripted("복구된 문장이다."),
	)
	o.SetChunks(planChunks("The system recovers."))

	round, err := o.ExecuteRound(context.Background())
	require.NoError(t, err)

	assert.Equal(t, state.StatusRepaired, round.Status)
	assert.Equal(t, 1, round.Repairs)
	assert.Equal(t, "복구된 문장이다.", round.Translation)
	assert.Equal(t, 2, client.CallCount())

	st := o.State()
	assert.Equal(t, 1, st.Quality.RetryCount["provider"])
	assert.Equal(t, 1, st.Quality.RetryCount["completion"])
	assert.Equal(t, 1, st.Costs.SubCalls)
}

func TestAdaptiveStrategyFollowsSimilarity(t *testing.T) {
	o, _ := newTestOrchestrator(t, func(cfg *Config) {
		cfg.Strategy = state.StrategyAdaptive
	},
		scripted("alpha beta kept going."),
		scripted("shared tokens follow."),
		scripted("unrelated words end."),
	)
	o.SetChunks(planChunks(
		"alpha beta gamma original",
		"delta epsilon zeta words",
		"alpha beta shared tokens",
	))

	var order []int
	for i := 0; i < 3; i++ {
		round, err := o.ExecuteRound(context.Background())
		require.NoError(t, err)
		order = append(order, round.ChunkIndex)
	}

	assert.Equal(t, []int{0, 2, 1}, order)
}

func TestPriorityStrategyShortestFirst(t *testing.T) {
	o, _ := newTestOrchestrator(t, func(cfg *Config) {
		cfg.Strategy = state.StrategyPriority
	},
		scripted("하나다."),
		scripted("둘이다."),
		scripted("셋이다."),
	)
	o.SetChunks(planChunks(
		"aaaa bbbb cccc dddd eeee",
		"short one",
		"medium text here",
	))

	var order []int
	for i := 0; i < 3; i++ {
		round, err := o.ExecuteRound(context.Background())
		require.NoError(t, err)
		order = append(order, round.ChunkIndex)
	}

	assert.Equal(t, []int{1, 0, 2}, order)
}

func TestSplitChunkRepairOnOversizeTruncation(t *testing.T) {
	obs := &recordingObserver{}
	tiny := &preset.Preset{
		Name:         "tiny",
		DocumentType: "technical",
		LLMParams:    preset.LLMParameters{Temperature: 0.2, MaxTokens: 1024, TopP: 0.9},
		ChunkSize:    8,
	}
	o, client := newTestOrchestrator(t, func(cfg *Config) {
		cfg.Observer = obs
		cfg.Preset = tiny
		cfg.PresetType = state.PresetTechnical
	},
		scripted("번역이 잘렸다..."),
		scripted("첫 문장이다."),
		scripted("둘째 문장이다."),
	)
	o.SetChunks(planChunks("First sentence here. Second sentence follows here."))

	round, err := o.ExecuteRound(context.Background())
	require.NoError(t, err)

	assert.Equal(t, state.StatusRepaired, round.Status)
	assert.Equal(t, "첫 문장이다.\n둘째 문장이다.", round.Translation)
	assert.Equal(t, []state.RepairType{state.RepairSplitChunk}, obs.repairs)
	assert.Equal(t, []string{"Split oversize chunk and re-translate"}, obs.repairMsgs)

	calls := client.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[1].Messages[1].Content, "First sentence here.")
	assert.NotContains(t, calls[1].Messages[1].Content, "Second sentence follows here.")
	assert.Contains(t, calls[2].Messages[1].Content, "Second sentence follows here.")
}

func TestGlossaryUpdateRepairOnCandidateConflict(t *testing.T) {
	obs := &recordingObserver{}
	o, client := newTestOrchestrator(t, func(cfg *Config) {
		cfg.Observer = obs
	},
		scripted("번역이 잘렸다..."),
		scripted("밸브가 열린다."),
	)
	o.SetChunks(planChunks("The valve opens."))
	o.SetGlossary(map[string]string{"valve": "밸브"})
	o.State().ProposeTerms(map[string]string{"valve": "벨브"})

	round, err := o.ExecuteRound(context.Background())
	require.NoError(t, err)

	assert.Equal(t, state.StatusRepaired, round.Status)
	assert.Equal(t, "밸브가 열린다.", round.Translation)
	assert.Equal(t, []state.RepairType{state.RepairGlossaryUpdate}, obs.repairs)
	assert.Equal(t, []string{"Resolve term conflicts and re-translate"}, obs.repairMsgs)
	assert.Equal(t, 2, client.CallCount())
	assert.NotContains(t, o.State().TermCandidates, "valve")
}

func TestCacheHitBypassesProvider(t *testing.T) {
	store, err := cache.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	p := preset.BuiltinPresets()["general"]
	key := cache.Key{
		SourceLang: "en",
		TargetLang: "ko",
		Model:      "sub-model",
		Preset:     p.Name,
		ChunkText:  "The motor rotates.",
	}
	require.NoError(t, store.Put(context.Background(), key, "모터가 회전한다."))

	o, client := newTestOrchestrator(t, func(cfg *Config) {
		cfg.Cache = store
	})
	o.SetChunks(planChunks("The motor rotates."))

	res, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 0, client.CallCount())
	assert.Equal(t, 1, res.TotalCalls)
	assert.Equal(t, 0.0, res.TotalCost)
	assert.Equal(t, "모터가 회전한다.", o.State().TranslationHistory[0])

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestRunCancelledBeforeWork(t *testing.T) {
	o, client := newTestOrchestrator(t, nil, scripted("모터가 회전한다."))
	o.SetChunks(planChunks("The motor rotates."))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Completed)
	assert.Equal(t, 0, client.CallCount())
	assert.Equal(t, []bool{false}, o.State().Plan.Committed)
}

func TestRunEmptyPlan(t *testing.T) {
	obs := &recordingObserver{}
	o, client := newTestOrchestrator(t, func(cfg *Config) {
		cfg.Observer = obs
	})

	res, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Completed)
	assert.Equal(t, 0, res.TotalChunks)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, 0, client.CallCount())
	assert.Equal(t, []string{"Starting translation", "Translation complete"}, obs.progress)
}

func TestProgressSnapshot(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil,
		scripted("모터가 회전한다."),
		scripted("밸브가 열린다."),
	)
	o.SetChunks(planChunks("The motor rotates.", "The valve opens."))

	_, err := o.ExecuteRound(context.Background())
	require.NoError(t, err)

	p := o.Progress()
	assert.Equal(t, 2, p.TotalChunks)
	assert.Equal(t, 1, p.CompletedChunks)
	assert.Equal(t, 0, p.FailedChunks)
	assert.InDelta(t, 0.5, p.Fraction, 1e-9)
}
