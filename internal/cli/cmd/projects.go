package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/echoboard/echoboard/pkg/client"
	"github.com/spf13/cobra"
)

var (
	projectConfigFile   string
	projectPrevVersion  string
	webhookResourceType string
	webhookEventType    string
	webhookURL          string
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage projects",
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project from a config file",
	Run: func(cmd *cobra.Command, args []string) {
		config := readConfigArg()
		project, err := getClient().ProjectCreate(cmd.Context(), config)
		if err != nil {
			fail(err)
		}
		printProject(project)
	},
}

var projectsGetCmd = &cobra.Command{
	Use:   "get <project-id>",
	Short: "Get a project by id",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		project, err := getClient().ProjectGet(cmd.Context(), args[0])
		if err != nil {
			fail(err)
		}
		printProject(project)
	},
}

var projectsResolveCmd = &cobra.Command{
	Use:   "resolve <slug>",
	Short: "Resolve a slug to its project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		project, err := getClient().ProjectGetBySlug(cmd.Context(), args[0])
		if err != nil {
			fail(err)
		}
		printProject(project)
	},
}

var projectsUpdateCmd = &cobra.Command{
	Use:   "update <project-id>",
	Short: "Replace a project's config from a config file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := readConfigArg()
		resp, err := getClient().ProjectUpdate(cmd.Context(), args[0], projectPrevVersion, config)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			printJSON(resp)
			return
		}
		fmt.Println("Updated", resp.ProjectID)
		fmt.Println("Version:", resp.Version)
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project and its slugs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := getClient().ProjectDelete(cmd.Context(), args[0]); err != nil {
			fail(err)
		}
		fmt.Println("Deleted", args[0])
	},
}

var webhooksAddCmd = &cobra.Command{
	Use:   "webhook-add <project-id>",
	Short: "Register a webhook listener on a project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := getClient().WebhookListenerAdd(cmd.Context(), args[0], client.WebhookListenerRequest{
			ResourceType: webhookResourceType,
			EventType:    webhookEventType,
			URL:          webhookURL,
		})
		if err != nil {
			fail(err)
		}
		fmt.Println("Webhook listener added")
	},
}

var webhooksRemoveCmd = &cobra.Command{
	Use:   "webhook-remove <project-id>",
	Short: "Remove a webhook listener from a project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := getClient().WebhookListenerRemove(cmd.Context(), args[0], client.WebhookListenerRequest{
			ResourceType: webhookResourceType,
			EventType:    webhookEventType,
			URL:          webhookURL,
		})
		if err != nil {
			fail(err)
		}
		fmt.Println("Webhook listener removed")
	},
}

// readConfigArg loads the config blob from --config (or stdin when "-").
func readConfigArg() json.RawMessage {
	var data []byte
	var err error
	if projectConfigFile == "" || projectConfigFile == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(projectConfigFile)
	}
	if err != nil {
		fail(err)
	}
	if !json.Valid(data) {
		fail(fmt.Errorf("config file is not valid JSON"))
	}
	return data
}

func printProject(project *client.Project) {
	if jsonOutput {
		printJSON(project)
		return
	}
	fmt.Println("Project:", project.ProjectID)
	fmt.Println("Account:", project.AccountID)
	fmt.Println("Version:", project.Version)
	fmt.Println("Config:", string(project.Config))
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func init() {
	projectsCreateCmd.Flags().StringVarP(&projectConfigFile, "config", "c", "", "config JSON file (- for stdin)")
	projectsUpdateCmd.Flags().StringVarP(&projectConfigFile, "config", "c", "", "config JSON file (- for stdin)")
	projectsUpdateCmd.Flags().StringVar(&projectPrevVersion, "previous-version", "", "fail if the stored version differs")

	for _, c := range []*cobra.Command{webhooksAddCmd, webhooksRemoveCmd} {
		c.Flags().StringVar(&webhookResourceType, "resource", "post", "resource type (post, comment)")
		c.Flags().StringVar(&webhookEventType, "event", "", "event type")
		c.Flags().StringVar(&webhookURL, "url", "", "listener URL")
	}

	projectsCmd.AddCommand(projectsCreateCmd)
	projectsCmd.AddCommand(projectsGetCmd)
	projectsCmd.AddCommand(projectsResolveCmd)
	projectsCmd.AddCommand(projectsUpdateCmd)
	projectsCmd.AddCommand(projectsDeleteCmd)
	projectsCmd.AddCommand(webhooksAddCmd)
	projectsCmd.AddCommand(webhooksRemoveCmd)
	rootCmd.AddCommand(projectsCmd)
}
