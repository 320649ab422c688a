package main

import (
	"log"

	"github.com/lightcast/lightcast/lightcast-golib/cmdline"
	"github.com/lightcast/lightcast/lightcast-golib/errors"

	"github.com/lightcast/lightcast/lightcast-go/traffic/events"
	"github.com/lightcast/lightcast/lightcast-go/traffic/history"
	"github.com/lightcast/lightcast/lightcast-go/traffic/model"
	"github.com/lightcast/lightcast/lightcast-go/traffic/train"
	"github.com/lightcast/lightcast/lightcast-go/traffic/vocab"
)

var trainCmd = cmdline.Command{
	Name:     "train",
	Synopsis: "train the signal state model for one (intersection, fold)",
	Args: &trainArgs{
		BatchSize:   128,
		NumWorkers:  8,
		EpochMax:    5,
		MinFreq:     vocab.DefaultMinFreq,
		Device:      "cpu",
		ArtifactDir: ".",
	},
}

type trainArgs struct {
	Dataset []string `arg:"--dataset-names,required" help:"training event table file(s), json or json.gz"`
	ValFile string   `arg:"--val-file-name,required" help:"validation event table file"`

	SignalMap    string `arg:"--signal-map,required" help:"intersection-to-signals json mapping"`
	Intersection int    `arg:"--intersection-i" help:"intersection id to train"`
	Fold         int    `arg:"--fold-i" help:"cross-validation fold being trained"`

	BatchSize  int `arg:"--batch-size"`
	NumWorkers int `arg:"--num-workers" help:"sample assembly workers"`
	EpochMax   int `arg:"--epoch-max"`
	MinFreq    int `arg:"--min-freq" help:"minimum token frequency before UNKNOWN"`

	Device      string `arg:"--device" help:"compute device, only cpu is supported"`
	ArtifactDir string `arg:"--artifact-dir" help:"directory for vocabulary and checkpoint artifacts"`
}

func (a *trainArgs) Validate() error {
	if a.Device != "cpu" {
		return errors.Errorf("unsupported device %q, only cpu is available", a.Device)
	}
	if a.Fold != 0 && a.Fold != 1 {
		return errors.Errorf("fold must be 0 or 1, got %d", a.Fold)
	}
	return nil
}

func (a *trainArgs) Handle() error {
	signalMap, err := events.LoadSignalMap(a.SignalMap)
	if err != nil {
		return err
	}
	signals, err := signalMap.Signals(a.Intersection)
	if err != nil {
		return err
	}

	full, err := events.Load(a.Dataset)
	if err != nil {
		return err
	}
	trainTable := full.ForIntersection(a.Intersection)
	trainRows := events.ValidIndices(trainTable, false)
	if len(trainRows) == 0 {
		return errors.Errorf("no valid training rows for intersection %d", a.Intersection)
	}

	valFull, err := events.Load([]string{a.ValFile})
	if err != nil {
		return err
	}
	valTable := valFull.ForIntersection(a.Intersection)
	valRows := events.ValidIndices(valTable, false)

	// the vocabulary is fixed by this fold's training rows and reused by
	// the complementary fold at inference time
	v := vocab.Build(trainTable)
	if err := v.Save(a.ArtifactDir, a.Intersection, a.Fold); err != nil {
		return err
	}

	trainLoader := history.NewLoader(
		history.NewDataset(history.NewBuilder(trainTable, v, signals, a.MinFreq), trainRows),
		a.BatchSize, a.NumWorkers, true, int64(a.Fold))
	valLoader := history.NewLoader(
		history.NewDataset(history.NewBuilder(valTable, v, signals, a.MinFreq), valRows),
		a.BatchSize, a.NumWorkers, false, int64(a.Fold))

	log.Printf("intersection %d fold %d: %d train rows, %d val rows, %d signals",
		a.Intersection, a.Fold, len(trainRows), len(valRows), len(signals))

	m := model.New(model.DefaultConfig(v.Len(), signals))
	checkpoint := model.CheckpointPath(a.ArtifactDir, a.Intersection, a.Fold)

	return train.NewTrainer(m, trainLoader, valLoader, a.EpochMax, checkpoint).Run()
}
