package http

import (
	"embed"
	"html/template"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/aaronboult/rust-simulation-engine/lib/env"
	"github.com/aaronboult/rust-simulation-engine/lib/flags"
	"github.com/aaronboult/rust-simulation-engine/lib/log"
)

// TemplateHelp returns a string that describes how to use a custom template
func TemplateHelp(prefix string) string {
	help := `#### Template

` + "`--{{ .Prefix }}template`" + ` allows a user to specify a custom markup template for
the page served when the root document is missing.  The server exports
the following markup to be used within the template:

| Parameter | Description |
| :-------- | :---------- |
| .Index    | The name of the missing root document. |
` + env.ShellExpandHelp

	tmpl, err := template.New("template help").Parse(help)
	if err != nil {
		log.Fatalf(nil, "Fatal error parsing template: %v", err)
	}

	data := struct {
		Prefix string
	}{
		Prefix: prefix,
	}
	buf := &strings.Builder{}
	err = tmpl.Execute(buf, data)
	if err != nil {
		log.Fatalf(nil, "Fatal error executing template: %v", err)
	}
	return buf.String()
}

// TemplateConfig for the templating functionality
type TemplateConfig struct {
	Path string
}

// AddFlagsPrefix for the templating functionality
func (cfg *TemplateConfig) AddFlagsPrefix(flagSet *pflag.FlagSet, prefix string) {
	flags.StringVarP(flagSet, &cfg.Path, prefix+"template", "", cfg.Path, "User-specified template for the fallback page")
}

// DefaultTemplateCfg returns a new config which can be customized by command line flags
func DefaultTemplateCfg() TemplateConfig {
	return TemplateConfig{}
}

// FallbackData is the data exported to the fallback page template
type FallbackData struct {
	Index string
}

// Assets holds the embedded filesystem for the default template
//
//go:embed templates
var Assets embed.FS

// GetTemplate returns the HTML template for the fallback page
func GetTemplate(tmpl string) (*template.Template, error) {
	var readFile = os.ReadFile
	if tmpl == "" {
		tmpl = "templates/fallback.html"
		readFile = Assets.ReadFile
	} else {
		tmpl = env.ShellExpand(tmpl)
	}

	data, err := readFile(tmpl)
	if err != nil {
		return nil, err
	}

	tpl, err := template.New("fallback").Parse(string(data))
	if err != nil {
		return nil, err
	}

	return tpl, nil
}
