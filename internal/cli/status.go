package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/NovaClaw/NovaClaw/internal/config"
	"github.com/NovaClaw/NovaClaw/internal/state"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ NovaClaw Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 NovaClaw Status")
		fmt.Printf("Version: %s\n", version)

		// Check config
		configPath, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Println("Config:  ✓ Found (" + configPath + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (run 'novaclaw config init' first)")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config:  ? Unable to load: %v\n", err)
			return
		}
		if cfg.WhatsApp.AccessToken != "" {
			fmt.Println("Access Token: ✓ Found")
		} else {
			fmt.Println("Access Token: ✗ Not found")
		}

		// Ask the running gateway for its state.
		addr := fmt.Sprintf("http://%s:%d/api/v1/state", cfg.Gateway.Host, cfg.Gateway.Port)
		client := &http.Client{Timeout: 3 * time.Second}
		resp, err := client.Get(addr)
		if err != nil {
			fmt.Println("Gateway: ✗ Not running (" + addr + ")")
			return
		}
		defer resp.Body.Close()

		var st state.AgentState
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			fmt.Printf("Gateway: ? Unexpected response: %v\n", err)
			return
		}
		fmt.Println("Gateway: ✓ Running")
		fmt.Printf("Persona: %s (%s)\n", st.Persona.Name, st.Persona.Tone)
		if st.Status.Connected {
			fmt.Println("WhatsApp: ✓ Connected")
		} else {
			fmt.Println("WhatsApp: ✗ Disconnected")
		}
		fmt.Printf("Groups:  %d tracked\n", len(st.Groups))
		fmt.Printf("Messages: %d logged\n", len(st.Messages))
	},
}
