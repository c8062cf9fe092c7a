package sop

import "github.com/CoReason-AI/coreason-signal/internal/model"

// DefaultLibrary returns the built-in SOPs for common liquid-handling and
// incubation faults. Deployments extend it with their own library file.
func DefaultLibrary() []model.SOPDocument {
	return []model.SOPDocument{
		{
			ID:      "SOP-104",
			Title:   "Aspiration vacuum pressure drop",
			Content: "Vacuum pressure drop detected in an aspiration channel during liquid transfer. Usually a partial tip or channel clog. Retry aspiration at reduced speed before escalating.",
			Metadata: map[string]string{
				"category":         "liquid_handling",
				"suggested_action": "RETRY",
			},
			AssociatedReflex: &model.AgentReflex{
				Action:     model.ActionRetry,
				Parameters: model.Params{"speed_factor": model.Number(0.5), "max_attempts": model.Number(2)},
				Reasoning:  "Retry aspiration at lower speed to clear clog.",
			},
		},
		{
			ID:       "SOP-117",
			Title:    "Liquid level detection failure",
			Content:  "Liquid level detection failed or no liquid found in source well. Sample volume may be insufficient or the labware definition is wrong. Pause the run so an operator can verify the source plate.",
			Metadata: map[string]string{"category": "liquid_handling"},
			AssociatedReflex: &model.AgentReflex{
				Action:     model.ActionPause,
				Parameters: model.Params{"require_operator": model.Bool(true)},
				Reasoning:  "Source volume unverified; pause until an operator inspects the plate.",
			},
		},
		{
			ID:       "SOP-203",
			Title:    "Incubator temperature excursion",
			Content:  "Incubator chamber temperature outside the configured setpoint tolerance. Cell viability is at risk if the excursion persists. Abort the protocol and alert the on-call scientist.",
			Metadata: map[string]string{"category": "environment", "tolerance_c": "0.5"},
			AssociatedReflex: &model.AgentReflex{
				Action:     model.ActionAbort,
				Parameters: model.Params{"notify": model.String("on-call")},
				Reasoning:  "Temperature excursion endangers samples; abort protocol.",
			},
		},
		{
			ID:       "SOP-310",
			Title:    "Gripper collision or plate drop",
			Content:  "Robotic arm gripper reported a collision, a missing plate, or a plate drop while moving labware between deck positions. Requires human inspection of the deck.",
			Metadata: map[string]string{"category": "robotics"},
		},
		{
			ID:       "SOP-415",
			Title:    "Barcode read failure",
			Content:  "Barcode reader could not read the plate or tube barcode. Transient glare or a misaligned label; rescan once and continue with manual entry if it fails again.",
			Metadata: map[string]string{"category": "identification", "suggested_action": "RETRY"},
			AssociatedReflex: &model.AgentReflex{
				Action:     model.ActionRetry,
				Parameters: model.Params{"max_attempts": model.Number(1)},
				Reasoning:  "Rescan barcode once before requesting manual entry.",
			},
		},
	}
}
