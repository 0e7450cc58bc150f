package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MarcoPoloResearchLab/gallery/internal/catalog"
	"github.com/MarcoPoloResearchLab/gallery/internal/export"
	"github.com/MarcoPoloResearchLab/gallery/internal/library"
)

func newMetaCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "meta <path>",
		Short: "Print the catalog metadata extracted from an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), app.library.Metadata(args[0]))
		},
	}
}

func newImportCommand(app *application) *cobra.Command {
	var overrides library.Overrides
	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Copy an image into the store and register it with the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := app.library.Import(cmd.Context(), args[0], overrides)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), record)
		},
	}
	cmd.Flags().StringVar(&overrides.Description, "description", "", "Photo description")
	cmd.Flags().StringSliceVar(&overrides.Tags, "tags", nil, "Comma separated tags")
	cmd.Flags().StringVar(&overrides.Location, "location", "", "Override the extracted location")
	cmd.Flags().StringVar(&overrides.DateTime, "date", "", "Override the extracted date (YYYY-MM-DD)")
	return cmd
}

func newListCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every catalogued photo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			photos, err := app.backend.ListPhotos(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), photos)
		},
	}
}

func newSearchCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "search <Location|Tag|Date Range|Description> <term>",
		Short: "Search the catalog",
		Long:  "Search the catalog. Date ranges are written FROM,TO with YYYY-MM-DD dates.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := catalog.SearchKindForLabel(args[0])
			photos, err := app.backend.Search(cmd.Context(), kind, args[1])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), photos)
		},
	}
}

func newSortCommand(app *application) *cobra.Command {
	var descending bool
	cmd := &cobra.Command{
		Use:   "sort <date|name|size|popularity>",
		Short: "List photos ordered by a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := catalog.ParseSortKind(args[0])
			if !ok {
				return fmt.Errorf("unknown sort key %q", args[0])
			}
			photos, err := app.backend.Sort(cmd.Context(), kind, !descending)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), photos)
		},
	}
	cmd.Flags().BoolVar(&descending, "desc", false, "Sort in descending order")
	return cmd
}

func newViewCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "view <id>",
		Short: "Record a view of a photo and print its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			photo, err := app.findPhoto(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := app.library.View(cmd.Context(), photo); err != nil {
				return err
			}
			photo.ViewCount++
			return writeJSON(cmd.OutOrStdout(), photo)
		},
	}
}

func newTagCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <id> <tag>",
		Short: "Add a tag to a photo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePhotoID(args[0])
			if err != nil {
				return err
			}
			tag := strings.TrimSpace(args[1])
			if tag == "" {
				return fmt.Errorf("tag must not be empty")
			}
			return app.backend.AddTag(cmd.Context(), id, tag)
		},
	}
}

func newUpdateCommand(app *application) *cobra.Command {
	var (
		location    string
		description string
		tags        []string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace the location, description and tags of a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			photo, err := app.findPhoto(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			update := catalog.PhotoUpdate{
				Location:    photo.Location,
				Description: photo.Description,
				Tags:        photo.Tags,
			}
			if cmd.Flags().Changed("location") {
				update.Location = location
			}
			if cmd.Flags().Changed("description") {
				update.Description = description
			}
			if cmd.Flags().Changed("tags") {
				update.Tags = catalog.JoinTags(tags)
			}
			return app.backend.UpdatePhoto(cmd.Context(), photo.ID, update)
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "New location")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "New comma separated tags")
	return cmd
}

func newDeleteCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a photo record and its stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			photo, err := app.findPhoto(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.library.Delete(cmd.Context(), photo)
		},
	}
}

func newExportCommand(app *application) *cobra.Command {
	var region string
	cmd := &cobra.Command{
		Use:   "export <id> <dir|s3://bucket/prefix>",
		Short: "Copy a stored photo to a directory or an S3 compatible bucket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			photo, err := app.findPhoto(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			exporter, err := export.ForTarget(args[1], export.MinioConfig{
				Endpoint:  app.config.Minio.Endpoint,
				AccessKey: app.config.Minio.AccessKey,
				SecretKey: app.config.Minio.SecretKey,
				UseSSL:    app.config.Minio.UseSSL,
				Region:    region,
				Logger:    app.logger,
			})
			if err != nil {
				return err
			}
			if bucketExporter, ok := exporter.(*export.MinioExporter); ok {
				if err := bucketExporter.EnsureBucket(cmd.Context()); err != nil {
					return err
				}
			}
			location, err := app.library.Export(cmd.Context(), photo, exporter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), location)
			return nil
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "Bucket region for s3:// targets")
	return cmd
}
