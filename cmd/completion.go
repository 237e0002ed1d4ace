package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var completionHelp = map[string]string{
	"bash": `Load completions for the current shell session:
$ source <(${name} completion bash --print)

Load completions for every new session:
$ ${name} completion bash --install /etc/bash_completion.d/${name}`,
	"zsh": `Enable completion in zsh first if it is not enabled yet:
% echo "autoload -U compinit; compinit" >> ~/.zshrc

Load completions for every new session:
% ${name} completion zsh --print > "${fpath[1]}/_${name}"`,
	"fish": `Load completions for every new session:
> ${name} completion fish --print > ~/.config/fish/completions/${name}.fish`,
	"powershell": `Load completions for the current shell session:
> ${name} completion powershell --print | Out-String | Invoke-Expression`,
}

// NewCompletionCmd replaces the generated completion commands with ones that explain
// how to install them unless --print or --install is given.
func NewCompletionCmd(parent *cobra.Command) {
	parent.InitDefaultCompletionCmd()
	var cmd *cobra.Command
	for _, child := range parent.Commands() {
		if child.Name() == "completion" {
			cmd = child
			break
		}
	}
	if cmd == nil {
		return
	}
	withDesc := !parent.CompletionOptions.DisableDescriptions

	for _, child := range cmd.Commands() {
		shell := child.Name()
		child.RunE = func(cmd *cobra.Command, _ []string) error {
			root := cmd.Root()
			if printScript, _ := cmd.Flags().GetBool("print"); printScript {
				return genCompletion(root, shell, "", withDesc)
			}
			if filename, _ := cmd.Flags().GetString("install"); filename != "" {
				return genCompletion(root, shell, filename, withDesc)
			}
			cmd.Println(strings.ReplaceAll(completionHelp[shell], "${name}", root.Name()))
			return nil
		}
	}
	cmd.PersistentFlags().BoolP("print", "p", false, "print the completion script to stdout")
	cmd.PersistentFlags().StringP("install", "i", "", "write the completion script to the given file")
}

func genCompletion(root *cobra.Command, shell string, filename string, withDesc bool) error {
	toFile := filename != ""
	switch shell {
	case "zsh":
		if toFile {
			if withDesc {
				return root.GenZshCompletionFile(filename)
			}
			return root.GenZshCompletionFileNoDesc(filename)
		}
		if withDesc {
			return root.GenZshCompletion(root.OutOrStdout())
		}
		return root.GenZshCompletionNoDesc(root.OutOrStdout())
	case "fish":
		if toFile {
			return root.GenFishCompletionFile(filename, withDesc)
		}
		return root.GenFishCompletion(root.OutOrStdout(), withDesc)
	case "powershell":
		if toFile {
			if withDesc {
				return root.GenPowerShellCompletionFileWithDesc(filename)
			}
			return root.GenPowerShellCompletionFile(filename)
		}
		if withDesc {
			return root.GenPowerShellCompletionWithDesc(root.OutOrStdout())
		}
		return root.GenPowerShellCompletion(root.OutOrStdout())
	default:
		if toFile {
			return root.GenBashCompletionFileV2(filename, withDesc)
		}
		return root.GenBashCompletionV2(root.OutOrStdout(), withDesc)
	}
}
