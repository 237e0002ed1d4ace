package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccxcon/ccxcon/internal/catalog"
	"github.com/ccxcon/ccxcon/internal/queue"
	"github.com/ccxcon/ccxcon/internal/ver"
)

func NewSyncCmd(parent *cobra.Command, version ver.Version) {
	cmd := &cobra.Command{
		Use:     "sync <course_id>",
		GroupID: "admin",
		Short:   "Syncs the module structure of a course from edX",
		Long: `Syncs the module structure of a course from edX. For example:

ccxcon sync course-v1:MITx+6.002x+2024

Schedules a sync job for the workers. With --inline, or when the memory queue is
configured, the sync runs right away in this process and the resulting webhook
notifications are delivered before the command returns.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inline, _ := cmd.Flags().GetBool("inline")
			courseID := args[0]

			a, err := newApp(cmd.Context(), cmd, version, componentCLI)
			if err != nil {
				return err
			}
			defer a.Close()

			if !inline && a.durable() {
				course, err := a.catalog.Resync(cmd.Context(), courseID)
				if err != nil {
					return err
				}
				cmd.Printf("Scheduled sync of %s (generation %d)\n", course.CourseID, course.SyncGeneration)
				return nil
			}

			if _, err = a.db.GetCourseByCourseID(cmd.Context(), courseID); err != nil {
				return fmt.Errorf("%w: %s", catalog.ErrCourseNotFound, courseID)
			}
			err = a.syncTask().Sync(cmd.Context(), courseID, 0, 0)
			var retryErr *queue.RetryError
			if errors.As(err, &retryErr) {
				return fmt.Errorf("sync failed, a worker would retry in %s: %w", retryErr.Delay, retryErr.Err)
			}
			if err != nil {
				return err
			}
			if !a.durable() {
				a.drain(cmd.Context())
			}
			cmd.Printf("Synced %s\n", courseID)
			return nil
		},
	}

	parent.AddCommand(cmd)
	cmd.Flags().Bool("inline", false, "run the sync in this process instead of scheduling it")
}
