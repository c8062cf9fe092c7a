package cli

import (
	"fmt"
	"io"

	"github.com/CoReason-AI/coreason-signal/internal/config"
	"github.com/CoReason-AI/coreason-signal/internal/output"
	"github.com/CoReason-AI/coreason-signal/internal/output/file"
	"github.com/CoReason-AI/coreason-signal/internal/output/stdout"
	"github.com/CoReason-AI/coreason-signal/internal/output/webhook"
)

// buildOutputs creates one actuator per configured target, in target
// order. stdout targets write to w.
func buildOutputs(cfg config.OutputConfig, w io.Writer) ([]output.Output, error) {
	var outs []output.Output
	for _, target := range cfg.Targets {
		switch target {
		case "stdout":
			outs = append(outs, stdout.NewWriter(w, cfg.Pretty))
		case "file":
			var opts []file.Option
			if cfg.FileMaxSize > 0 {
				opts = append(opts, file.WithMaxSize(cfg.FileMaxSize))
			}
			if cfg.FileSync {
				opts = append(opts, file.WithSync())
			}
			f, err := file.New(cfg.FilePath, opts...)
			if err != nil {
				closeAll(outs)
				return nil, err
			}
			outs = append(outs, f)
		case "webhook":
			outs = append(outs, webhook.New(cfg.WebhookURL))
		default:
			closeAll(outs)
			return nil, fmt.Errorf("unknown output %q", target)
		}
	}
	return outs, nil
}

func closeAll(outs []output.Output) {
	for _, o := range outs {
		o.Close()
	}
}
