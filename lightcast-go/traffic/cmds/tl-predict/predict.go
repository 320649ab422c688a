package main

import (
	"log"

	"github.com/lightcast/lightcast/lightcast-golib/cmdline"
	"github.com/lightcast/lightcast/lightcast-golib/errors"

	"github.com/lightcast/lightcast/lightcast-go/traffic/events"
	"github.com/lightcast/lightcast/lightcast-go/traffic/history"
	"github.com/lightcast/lightcast/lightcast-go/traffic/infer"
	"github.com/lightcast/lightcast/lightcast-go/traffic/model"
	"github.com/lightcast/lightcast/lightcast-go/traffic/vocab"
)

var predictCmd = cmdline.Command{
	Name:     "predict",
	Synopsis: "predict signal states for one (intersection, fold) from the complementary fold's model",
	Args: &predictArgs{
		BatchSize:   128,
		NumWorkers:  8,
		MinFreq:     vocab.DefaultMinFreq,
		Device:      "cpu",
		ArtifactDir: ".",
		OutputDir:   ".",
	},
}

type predictArgs struct {
	Dataset []string `arg:"--dataset-names,required" help:"event table file(s) to predict over"`

	SignalMap    string `arg:"--signal-map,required" help:"intersection-to-signals json mapping"`
	Intersection int    `arg:"--intersection-i" help:"intersection id to predict"`
	Fold         int    `arg:"--fold-i" help:"fold of the input data; artifacts come from the other fold"`

	BatchSize  int `arg:"--batch-size"`
	NumWorkers int `arg:"--num-workers" help:"sample assembly workers"`
	MinFreq    int `arg:"--min-freq" help:"minimum token frequency before UNKNOWN"`

	Device       string `arg:"--device" help:"compute device, only cpu is supported"`
	ArtifactDir  string `arg:"--artifact-dir" help:"directory holding vocabulary and checkpoint artifacts"`
	OutputDir    string `arg:"--output-name" help:"directory for prediction output"`
	PredictionID string `arg:"--prediction-id" help:"optional tag for the output file name"`
}

func (a *predictArgs) Validate() error {
	if a.Device != "cpu" {
		return errors.Errorf("unsupported device %q, only cpu is available", a.Device)
	}
	if a.Fold != 0 && a.Fold != 1 {
		return errors.Errorf("fold must be 0 or 1, got %d", a.Fold)
	}
	return nil
}

func (a *predictArgs) Handle() error {
	signalMap, err := events.LoadSignalMap(a.SignalMap)
	if err != nil {
		return err
	}
	signals, err := signalMap.Signals(a.Intersection)
	if err != nil {
		return err
	}

	// cross-fold: fold f data is scored by the model trained on the other
	// fold, using that fold's vocabulary
	srcFold := (a.Fold + 1) % 2

	v, err := vocab.Load(a.ArtifactDir, a.Intersection, srcFold)
	if err != nil {
		return err
	}

	m := model.New(model.DefaultConfig(v.Len(), signals))
	if err := m.LoadCheckpoint(model.CheckpointPath(a.ArtifactDir, a.Intersection, srcFold)); err != nil {
		return err
	}

	full, err := events.Load(a.Dataset)
	if err != nil {
		return err
	}
	table := full.ForIntersection(a.Intersection)
	rows := events.ValidIndices(table, true)
	if len(rows) == 0 {
		return errors.Errorf("no valid rows for intersection %d", a.Intersection)
	}

	loader := history.NewLoader(
		history.NewDataset(history.NewBuilder(table, v, signals, a.MinFreq), rows),
		a.BatchSize, a.NumWorkers, false, 0)

	log.Printf("intersection %d fold %d: predicting %d rows with fold %d artifacts",
		a.Intersection, a.Fold, len(rows), srcFold)

	preds, err := infer.Run(m, loader)
	if err != nil {
		return err
	}
	return infer.Write(infer.ResultsPath(a.OutputDir, a.PredictionID, a.Fold, a.Intersection), preds)
}
