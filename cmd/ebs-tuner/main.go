// ebs-tuner - gp3 volume throughput and IOPS tuner
// Find tagged instances. Tune their volumes. Done.
package main

func main() {
	Execute()
}
