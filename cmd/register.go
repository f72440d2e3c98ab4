package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/register"
	"github.com/kozaktomas/face-attendance/internal/service"
)

var registerCmd = &cobra.Command{
	Use:   "register <video>",
	Short: "Enroll a person from a video",
	Long: `Enroll a person by extracting face templates from the first frames
of a short video.

Every face found in a frame becomes one template. Frames without a face
are skipped.

Example:
  face-attendance register --tenant acme --org 42 --person 1001 --name "Jane Doe" enroll.mp4`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
	addPersonFlags(registerCmd)
	registerCmd.Flags().String("name", "", "Person name, passed to the registration log")
	registerCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

func runRegister(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	videoData, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading video: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req := service.RegistrationRequest{
		Tenant:         mustGetString(cmd, "tenant"),
		OrganizationID: mustGetString(cmd, "org"),
		PersonID:       mustGetString(cmd, "person"),
		PersonName:     mustGetString(cmd, "name"),
	}

	var onProgress func(register.Progress)
	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(a.cfg.Registration.MaxFrames,
			progressbar.OptionSetDescription("Extracting templates"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("frames"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		onProgress = func(p register.Progress) {
			bar.ChangeMax(p.Frames)
			_ = bar.Set(p.Frame)
		}
	}

	res, err := a.service.RegisterFromVideo(context.Background(), req, videoData, onProgress)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	if jsonOutput {
		return outputJSON(res)
	}
	fmt.Printf("Registered %s: %d templates saved from %d frames\n", req.PersonID, res.Saved, res.Frames)
	fmt.Printf("  Pass: %s\n", res.PassID)
	return nil
}
