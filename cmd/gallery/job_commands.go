package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/gallery/internal/batch"
	"github.com/MarcoPoloResearchLab/gallery/internal/catalog"
	"github.com/MarcoPoloResearchLab/gallery/internal/editor"
	"github.com/MarcoPoloResearchLab/gallery/internal/transform"
)

func newEditCommand(app *application) *cobra.Command {
	var (
		specs  []string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a stored photo and overwrite it in place",
		Long: "Edit a stored photo. Each --op replaces the previous preview and starts from the " +
			"original image, except crop, which applies to the current preview.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := make([]transform.Operation, 0, len(specs))
			for _, spec := range specs {
				op, err := transform.Parse(spec)
				if err != nil {
					return err
				}
				ops = append(ops, op)
			}
			if len(ops) == 0 {
				return fmt.Errorf("at least one --op is required")
			}

			photo, err := app.findPhoto(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			session, err := app.library.Edit(photo.Filename, editor.SessionConfig{Logger: app.logger})
			if err != nil {
				return err
			}
			for _, op := range ops {
				if err := session.Apply(cmd.Context(), op); err != nil {
					return fmt.Errorf("%s: %w", op, err)
				}
			}
			bounds := session.Current().Bounds()
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: preview %dx%d, not saved\n", photo.Filename, bounds.Dx(), bounds.Dy())
				return nil
			}
			if err := app.library.SaveEdit(photo.Filename, session); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: saved %dx%d\n", photo.Filename, bounds.Dx(), bounds.Dy())
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&specs, "op", nil, "Operation such as rotate=90, crop=0,0,100,80, brightness=1.2, grayscale")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Apply the operations without saving")
	return cmd
}

func newBatchCommand(app *application) *cobra.Command {
	var (
		ids   []int64
		all   bool
		specs []string
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Apply operations to many photos",
		Long:  "Apply operations (resize=WxH, grayscale, add_tag=TAG or any edit operation) to the selected photos, photo by photo.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := make([]batch.Operation, 0, len(specs))
			for _, spec := range specs {
				op, err := batch.ParseSpec(spec)
				if err != nil {
					return err
				}
				ops = append(ops, op)
			}

			photos, err := app.backend.ListPhotos(cmd.Context())
			if err != nil {
				return err
			}
			if !all {
				photos, err = selectByID(photos, ids)
				if err != nil {
					return err
				}
			}

			executor, _, err := app.newExecutor()
			if err != nil {
				return err
			}
			stderr := cmd.ErrOrStderr()
			result, err := executor.Run(cmd.Context(), photos, ops, func(progress batch.Progress) {
				status := "ok"
				if progress.Err != nil {
					status = progress.Err.Error()
				}
				fmt.Fprintf(stderr, "[%d/%d] photo %d %s: %s\n", progress.Completed, progress.Total, progress.PhotoID, progress.Operation, status)
			})
			if err != nil {
				return err
			}
			app.logger.Info("batch complete",
				zap.String("job_id", result.JobID),
				zap.Int("succeeded", result.Succeeded()),
				zap.Int("failed", result.Failed),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d of %d steps succeeded\n", result.JobID, result.Succeeded(), result.Total)
			for _, stepErr := range result.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  %v\n", &stepErr)
			}
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&ids, "photo", nil, "Photo id to include (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Include every catalogued photo")
	cmd.Flags().StringArrayVar(&specs, "op", nil, "Operation to apply (repeatable, applied in order)")
	return cmd
}

func newHistoryCommand(app *application) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent batch runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := app.openJournal()
			if err != nil {
				return err
			}
			if j == nil {
				return fmt.Errorf("batch journal is disabled")
			}
			runs, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, run := range runs {
				fmt.Fprintf(out, "%s  %s  %d/%d steps, %d failed\n",
					run.JobID, run.StartedAt().Format("2006-01-02 15:04:05"), run.AttemptedSteps, run.TotalSteps, run.FailedSteps)
				for _, failure := range run.Failures {
					fmt.Fprintf(out, "  photo %d %s: %s\n", failure.PhotoID, failure.Operation, failure.Detail)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

// selectByID keeps the order of ids and rejects unknown ones.
func selectByID(photos []catalog.PhotoRecord, ids []int64) ([]catalog.PhotoRecord, error) {
	byID := make(map[int64]catalog.PhotoRecord, len(photos))
	for _, photo := range photos {
		byID[photo.ID] = photo
	}
	selected := make([]catalog.PhotoRecord, 0, len(ids))
	for _, id := range ids {
		photo, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("photo %d not found", id)
		}
		selected = append(selected, photo)
	}
	return selected, nil
}
