package httpx

import (
	"net/http"

	domainjob "github.com/target/mmk-inference/internal/domain/job"
	"github.com/target/mmk-inference/internal/domain/model"
	"github.com/target/mmk-inference/internal/service"
)

// StatsHandlers reports pipeline occupancy for operators.
type StatsHandlers struct {
	Scheduler *service.JobScheduler
	Hub       *service.BroadcastHub
	Channel   domainjob.StatusChannel
}

type statsResponse struct {
	Scheduler model.JobStats         `json:"scheduler"`
	Hub       service.HubStats       `json:"hub"`
	Channel   domainjob.ChannelStats `json:"channel"`
}

// Stats handles GET /api/stats.
func (h *StatsHandlers) Stats(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, statsResponse{
		Scheduler: h.Scheduler.Stats(),
		Hub:       h.Hub.Stats(),
		Channel:   h.Channel.Stats(),
	})
}
