package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/coindraw/internal/domain/lottery"
	"github.com/riskibarqy/coindraw/internal/usecase"
)

func (h *Handler) CreateLottery(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CreateLottery")
	defer span.End()

	var req createLotteryRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	drawTime, err := time.Parse(time.RFC3339, req.DrawTime)
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: drawTime must be RFC 3339: %v", usecase.ErrInvalidInput, err))
		return
	}

	activity, err := h.lotteryService.Create(ctx, usecase.CreateLotteryInput{
		TotalCoins:   req.TotalCoins,
		Participants: req.Participants,
		DrawTime:     drawTime,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "create lottery failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusCreated, activityToDTO(ctx, activity))
}

func (h *Handler) GetLottery(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetLottery")
	defer span.End()

	lotteryID := strings.TrimSpace(r.PathValue("lotteryID"))
	activity, err := h.lotteryService.Get(ctx, lotteryID)
	if err != nil {
		h.logger.WarnContext(ctx, "get lottery failed", "lottery_id", lotteryID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, activityToDTO(ctx, activity))
}

func (h *Handler) ClaimCoins(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ClaimCoins")
	defer span.End()

	lotteryID := strings.TrimSpace(r.PathValue("lotteryID"))

	var req claimRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	result, activity, err := h.lotteryService.Claim(ctx, lotteryID, req.ParticipantName)
	if err != nil {
		h.logger.WarnContext(ctx, "claim failed", "lottery_id", lotteryID, "participant", req.ParticipantName, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, claimResponse{
		Result:  resultToDTO(ctx, result),
		Lottery: activityToDTO(ctx, activity),
	})
}

func (h *Handler) FinalizeLottery(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.FinalizeLottery")
	defer span.End()

	lotteryID := strings.TrimSpace(r.PathValue("lotteryID"))
	activity, err := h.lotteryService.Finalize(ctx, lotteryID)
	if err != nil {
		h.logger.WarnContext(ctx, "finalize lottery failed", "lottery_id", lotteryID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, activityToDTO(ctx, activity))
}

type createLotteryRequest struct {
	TotalCoins   int      `json:"totalCoins" validate:"required,min=1"`
	Participants []string `json:"participants" validate:"required,min=2,dive,required"`
	DrawTime     string   `json:"drawTime" validate:"required"`
}

type claimRequest struct {
	ParticipantName string `json:"participantName" validate:"required,max=200"`
}

type claimResponse struct {
	Result  resultDTO  `json:"result"`
	Lottery lotteryDTO `json:"lottery"`
}

type lotteryDTO struct {
	ID             string      `json:"id"`
	TotalCoins     int         `json:"totalCoins"`
	Participants   []string    `json:"participants"`
	DrawTime       string      `json:"drawTime"`
	Completed      bool        `json:"completed"`
	Results        []resultDTO `json:"results"`
	RemainingCoins int         `json:"remainingCoins"`
	CreatedAtUTC   string      `json:"createdAtUtc"`
	UpdatedAtUTC   string      `json:"updatedAtUtc"`
}

type resultDTO struct {
	ParticipantName string `json:"participantName"`
	Coins           int    `json:"coins"`
	Origin          string `json:"origin"`
	DrawnAt         string `json:"drawnAt"`
}

func activityToDTO(ctx context.Context, v lottery.Activity) lotteryDTO {
	ctx, span := startSpan(ctx, "httpapi.activityToDTO")
	defer span.End()

	results := make([]resultDTO, 0, len(v.Results))
	for _, r := range v.Results {
		results = append(results, resultToDTO(ctx, r))
	}

	return lotteryDTO{
		ID:             v.ID,
		TotalCoins:     v.Config.TotalCoins,
		Participants:   append([]string(nil), v.Config.Participants...),
		DrawTime:       v.Config.DrawTime.UTC().Format(time.RFC3339Nano),
		Completed:      v.Completed,
		Results:        results,
		RemainingCoins: v.RemainingCoins(),
		CreatedAtUTC:   v.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAtUTC:   v.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func resultToDTO(ctx context.Context, v lottery.Result) resultDTO {
	ctx, span := startSpan(ctx, "httpapi.resultToDTO")
	defer span.End()

	return resultDTO{
		ParticipantName: v.ParticipantName,
		Coins:           v.Coins,
		Origin:          string(v.Origin),
		DrawnAt:         v.DrawnAt.UTC().Format(time.RFC3339Nano),
	}
}
