package cli

import (
	"fmt"
	"path/filepath"

	"github.com/chfs/chfs/internal/config"
	"github.com/chfs/chfs/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage dynamic users",
	Long:  `Add, remove, and list the dynamic users layered on top of chfs.yaml's static user list.`,
}

var userAddCmd = &cobra.Command{
	Use:   "add [username] [password]",
	Short: "Add a new dynamic user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := getUserStore()
		if err != nil {
			return err
		}

		username, password := args[0], args[1]
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		if err := users.AddPrehashed(username, string(hash), true, nil); err != nil {
			return err
		}

		fmt.Printf("user %q created\n", username)
		return nil
	},
}

var userRmCmd = &cobra.Command{
	Use:   "rm [username]",
	Short: "Remove a dynamic user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := getUserStore()
		if err != nil {
			return err
		}
		if err := users.Remove(args[0]); err != nil {
			return err
		}
		fmt.Printf("user %q removed\n", args[0])
		return nil
	},
}

var userLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List configured users (static and dynamic)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New(configPath(), dataDirPath(), nil)
		if err != nil {
			return err
		}
		snap := cfg.Current()
		if len(snap.Users) == 0 {
			fmt.Println("no users configured")
			return nil
		}
		for _, u := range snap.Users {
			origin := "static"
			if u.Dynamic {
				origin = "dynamic"
			}
			fmt.Printf("%-20s %s\n", u.Name, origin)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userRmCmd)
	userCmd.AddCommand(userLsCmd)
}

func getUserStore() (*store.UserStore, error) {
	return store.NewUserStore(filepath.Join(dataDirPath(), "users.json"))
}
