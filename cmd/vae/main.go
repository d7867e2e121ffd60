// Command vae trains variational autoencoders and renders their diagnostics.
//
// Usage:
//
//	vae train    -config configs/vae.yaml
//	vae diagnose -config configs/vae.yaml -checkpoint logs/VanillaVAE/version_0/Model/state_dict_model.pt
//	vae devices
//	vae version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/config"
)

const version = "v0.1.0-dev"

var flagEnv = flag.String("env", ".env", "Optional dotenv file with VAE_* overrides")

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "vae %s - VAE training and evaluation harness\n\n", version)
	fmt.Fprintln(out, "Usage: vae [flags] <command> [command flags]")
	fmt.Fprintln(out, "\nCommands:")
	fmt.Fprintln(out, "  train      Train a model from an experiment file")
	fmt.Fprintln(out, "  diagnose   Render latent-space figures from a checkpoint")
	fmt.Fprintln(out, "  devices    List available compute devices")
	fmt.Fprintln(out, "  version    Show version")
	fmt.Fprintln(out, "\nFlags:")
	flag.PrintDefaults()
}

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	defer klog.Flush()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	must.M(config.LoadDotEnv(*flagEnv))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	var err error
	switch cmd {
	case "train":
		err = runTrain(ctx, args)
	case "diagnose":
		err = runDiagnose(ctx, args)
	case "devices":
		runDevices()
	case "version":
		fmt.Printf("vae %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		klog.ErrorS(err, "Command failed", "command", cmd)
		klog.Flush()
		os.Exit(1)
	}
}
