// Package modelhcl is the concrete default implementation of the component
// model registry external collaborator (spec §6): it parses HCL manifest
// files declaring component models, deployment models, and available
// deployments, and populates a portmodel.Registry.
//
// A caller embedding the resolver in a larger framework that already has a
// live component-model registry does not need this package at all; it
// exists so the resolver is runnable and testable standalone.
package modelhcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/netgen/internal/ctxlog"
	"github.com/vk/netgen/internal/portmodel"
)

// roleFromLabel maps a manifest's role label to a portmodel.ModelRole.
func roleFromLabel(label string) (portmodel.ModelRole, error) {
	switch label {
	case "task_context":
		return portmodel.RoleTaskContext, nil
	case "composition":
		return portmodel.RoleComposition, nil
	case "data_service":
		return portmodel.RoleDataService, nil
	case "component":
		return portmodel.RoleComponent, nil
	case "device":
		return portmodel.RoleDevice, nil
	default:
		return 0, fmt.Errorf("unknown component model role %q", label)
	}
}

// LoadDirectory recursively finds every *.hcl file under dirPath, parses it,
// and merges its declarations into a new portmodel.Registry.
func LoadDirectory(ctx context.Context, dirPath string) (*portmodel.Registry, error) {
	logger := ctxlog.FromContext(ctx)
	reg := portmodel.New()

	files, err := findHCLFiles(dirPath)
	if err != nil {
		return nil, fmt.Errorf("scanning manifest directory %q: %w", dirPath, err)
	}
	if len(files) == 0 {
		logger.Warn("No .hcl manifest files found.", "path", dirPath)
		return reg, nil
	}

	parser := hclparse.NewParser()
	for _, path := range files {
		hclFile, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing manifest file %s: %w", path, diags)
		}
		if err := decodeInto(hclFile.Body, path, reg); err != nil {
			return nil, fmt.Errorf("decoding manifest file %s: %w", path, err)
		}
	}

	logger.Debug("Manifest directory loaded.",
		"path", dirPath, "models", len(reg.Models), "deployments", len(reg.Deployments),
		"available_deployments", len(reg.AvailableDeployments))
	return reg, nil
}

// decodeInto decodes one manifest file's body and merges its declarations
// into reg. Later files may add new models; a duplicate name silently
// overwrites the earlier entry, same as the last-write-wins policy used for
// duplicate runner/asset definitions in the teacher's module discovery.
func decodeInto(body hcl.Body, path string, reg *portmodel.Registry) error {
	var file manifestFile
	if diags := gohcl.DecodeBody(body, nil, &file); diags.HasErrors() {
		return diags
	}

	for _, cm := range file.ComponentModels {
		model, err := translateComponentModel(cm)
		if err != nil {
			return fmt.Errorf("component_model %q %q: %w", cm.Role, cm.Name, err)
		}
		reg.Models[model.Name] = model
	}

	for _, dm := range file.DeploymentModels {
		reg.Deployments[dm.Name] = translateDeploymentModel(dm)
	}

	for _, ad := range file.AvailableDeployments {
		dm, ok := reg.Deployments[ad.Deployment]
		if !ok {
			return fmt.Errorf("available_deployment on host %q references unknown deployment model %q", ad.Host, ad.Deployment)
		}
		reg.AvailableDeployments = append(reg.AvailableDeployments, portmodel.AvailableDeployment{
			Host:       ad.Host,
			Deployment: dm,
		})
	}

	return nil
}

func translateComponentModel(cm *componentModelDef) (*portmodel.ComponentModel, error) {
	role, err := roleFromLabel(cm.Role)
	if err != nil {
		return nil, err
	}

	model := &portmodel.ComponentModel{
		Name:            cm.Name,
		Role:            role,
		FulfilledModels: cm.Fulfills,
	}

	for _, in := range cm.Inputs {
		t, err := typeExprToCtyType(in.Type)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		model.Ports = append(model.Ports, portmodel.Port{
			Name: in.Name, Type: t, Direction: portmodel.Input,
			Static: in.Static, Multiplexes: in.Multiplexes,
		})
	}
	for _, out := range cm.Outputs {
		t, err := typeExprToCtyType(out.Type)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", out.Name, err)
		}
		model.Ports = append(model.Ports, portmodel.Port{
			Name: out.Name, Type: t, Direction: portmodel.Output,
			Static: out.Static, Multiplexes: out.Multiplexes,
		})
	}
	for _, c := range cm.Children {
		model.Children = append(model.Children, portmodel.Child{
			Name: c.Name, Model: c.Model, Optional: c.Optional,
		})
	}
	for _, d := range cm.MasterDrivers {
		model.MasterDrivers = append(model.MasterDrivers, portmodel.MasterDriverService{Name: d.Name})
	}

	return model, nil
}

func translateDeploymentModel(dm *deploymentModelDef) *portmodel.DeploymentModel {
	out := &portmodel.DeploymentModel{Name: dm.Name}
	for _, t := range dm.Tasks {
		out.Tasks = append(out.Tasks, portmodel.DeployedTaskContext{
			LocalName: t.LocalName, Model: t.Model,
		})
	}
	return out
}

func findHCLFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if filepath.Ext(root) != ".hcl" {
			return nil, fmt.Errorf("not an .hcl file: %s", root)
		}
		return []string{root}, nil
	}

	var files []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".hcl" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
