package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/crabzie/workspace-fleet/config/logger"
	config "github.com/crabzie/workspace-fleet/config/utils"
	"github.com/crabzie/workspace-fleet/internal/adapter/queue/rabbitmq"
	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// statusPayload covers the fields shared by every broadcast payload
type statusPayload struct {
	TaskID         string   `json:"taskId"`
	WorkspaceID    string   `json:"workspaceId"`
	Title          string   `json:"title"`
	WorkflowStatus string   `json:"workflowStatus"`
	NodeIDs        []string `json:"nodeIds"`
	Depth          int      `json:"depth"`
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[37m"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	appConfig := config.New()
	log := logger.Build(appConfig.Logger, viper.GetViper()).Named("Monitor")

	queue, err := rabbitmq.NewEventQueue(ctx, appConfig.MQ.URL, appConfig.MQ.Exchange, appConfig.MQ.MaxRetries, log)
	if err != nil {
		log.Error("Error connecting to rabbitmq", zap.Error(err))
		os.Exit(1)
	}
	defer queue.Close()

	binding := "#"
	if len(os.Args) > 1 {
		binding = os.Args[1]
	}

	fmt.Println(colorCyan + "🚀 Workflow Event Monitor Starting..." + colorReset)
	fmt.Printf(colorGray+"Listening on exchange %s with binding %q..."+colorReset+"\n", appConfig.MQ.Exchange, binding)
	fmt.Println("-------------------------------------------------------------------------")

	if err := queue.ConsumeEvents(ctx, appConfig.MQ.Queue, binding, func(event domain.Event) error {
		prettify(event)
		return nil
	}); err != nil {
		log.Error("Error starting consumer", zap.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	fmt.Println(colorGray + "Monitor stopped." + colorReset)
}

func prettify(event domain.Event) {
	raw, _ := json.Marshal(event.Payload)
	var p statusPayload
	_ = json.Unmarshal(raw, &p)

	channel := colorGray + event.Channel + colorReset
	if strings.HasPrefix(event.Channel, "workspace-") {
		channel = colorPurple + event.Channel + colorReset
	}

	switch event.Name {
	case domain.EventWorkflowStatusUpdate:
		// The workspace event carries the same change with more context
	case domain.EventWorkspaceTaskStatusUpdate:
		fmt.Printf("[%s] %s %s %q\n", channel, statusLabel(p.WorkflowStatus), p.TaskID, p.Title)
	case domain.EventHighlightNodes:
		fmt.Printf("[%s] 🔦 "+colorCyan+"Highlight:"+colorReset+" %d nodes, depth %d\n", channel, len(p.NodeIDs), p.Depth)
	default:
		fmt.Printf("[%s] %s\n", channel, event.Name)
	}
}

func statusLabel(status string) string {
	switch domain.WorkflowStatus(status) {
	case domain.WorkflowStatusInProgress:
		return "⚙️  " + colorBlue + "Running:" + colorReset
	case domain.WorkflowStatusCompleted:
		return "✅ " + colorGreen + "Completed:" + colorReset
	case domain.WorkflowStatusFailed:
		return "❌ " + colorRed + "Failed:" + colorReset
	case domain.WorkflowStatusHalted:
		return "⏸️  " + colorYellow + "Halted:" + colorReset
	}
	return "📥 " + colorYellow + status + ":" + colorReset
}
