// reconcile.go implements the one-shot reconcile command: build and print
// the effective detection set of a single inspection.
package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/heatwatch/heatwatch-go/internal/api"
	"github.com/heatwatch/heatwatch-go/internal/conf"
)

func reconcileCommand(settings *conf.Settings) *cobra.Command {
	var inspectionNo uint
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Print an inspection's effective detection set as JSON",
		Long: "Merges the stored detector predictions with the human " +
			"annotation log and prints the resulting detection set, in the " +
			"same order the API serves it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(settings)
			if err != nil {
				return err
			}
			defer closeFn()

			detections, err := svc.EffectiveDetections(inspectionNo)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(api.NewDetectionSetResponse(detections))
		},
	}
	cmd.Flags().UintVar(&inspectionNo, "inspection", 0, "Inspection number")
	_ = cmd.MarkFlagRequired("inspection")
	return cmd
}
