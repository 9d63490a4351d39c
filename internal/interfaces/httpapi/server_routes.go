package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
}

func registerLotteryRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("POST /v1/lotteries", handler.CreateLottery)
	mux.HandleFunc("GET /v1/lotteries/{lotteryID}", handler.GetLottery)
	mux.HandleFunc("POST /v1/lotteries/{lotteryID}/claims", handler.ClaimCoins)
	mux.HandleFunc("POST /v1/lotteries/{lotteryID}/finalize", handler.FinalizeLottery)
}
