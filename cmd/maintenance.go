// maintenance.go implements the annotation stats and cleanup commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heatwatch/heatwatch-go/internal/conf"
	"github.com/heatwatch/heatwatch-go/internal/datastore"
	"github.com/heatwatch/heatwatch-go/internal/imagestore"
	"github.com/heatwatch/heatwatch-go/internal/inspection"
)

// openService builds a service for one-shot CLI use, without the detector
// or metrics.
func openService(settings *conf.Settings) (*inspection.Service, func(), error) {
	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return nil, nil, err
	}
	images, err := imagestore.New(settings.Images.Dir)
	if err != nil {
		_ = ds.Close()
		return nil, nil, err
	}
	svc := inspection.New(ds, images, nil, nil, settings)
	return svc, func() { _ = ds.Close() }, nil
}

func statsCommand(settings *conf.Settings) *cobra.Command {
	var transformerNo string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show annotation statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(settings)
			if err != nil {
				return err
			}
			defer closeFn()

			stats, err := svc.AnnotationStats(transformerNo)
			if err != nil {
				return err
			}
			fmt.Printf("Inspections:            %d\n", stats.TotalInspections)
			fmt.Printf("With human annotations: %d\n", stats.WithChanges)
			fmt.Printf("Edited/added entries:   %d\n", stats.EditedOrAdded)
			fmt.Printf("Deleted entries:        %d\n", stats.Deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&transformerNo, "transformer", "", "Limit stats to one transformer")
	return cmd
}

func cleanupCommand(settings *conf.Settings) *cobra.Command {
	var (
		transformerNo string
		inspectionNo  uint
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Clear human annotation data",
		Long: "Clears the edited/added and deleted annotation partitions, " +
			"typically after the detection model has been retrained on the " +
			"corrected data. Detector output is kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(settings)
			if err != nil {
				return err
			}
			defer closeFn()

			cleared, err := svc.CleanupAnnotations(transformerNo, inspectionNo)
			if err != nil {
				return err
			}
			fmt.Printf("Cleared annotations on %d inspection(s)\n", cleared)
			return nil
		},
	}
	cmd.Flags().StringVar(&transformerNo, "transformer", "", "Limit cleanup to one transformer")
	cmd.Flags().UintVar(&inspectionNo, "inspection", 0, "Limit cleanup to one inspection")
	return cmd
}
